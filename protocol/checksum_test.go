package protocol

import "testing"

func TestXORChecksum(t *testing.T) {
	cases := []struct {
		data []byte
		want uint8
	}{
		{nil, 0xFF},
		{[]byte{0x00}, 0xFF},
		{[]byte{0xFF}, 0x00},
		{[]byte{0x11, 0x21}, 0xFF ^ 0x11 ^ 0x21},
	}
	for _, c := range cases {
		if got := XORChecksum(c.data); got != c.want {
			t.Errorf("XORChecksum(%v) = 0x%02x, want 0x%02x", c.data, got, c.want)
		}
	}
}

func TestModChecksum(t *testing.T) {
	name := []byte("set_counter")
	var want uint8
	for _, b := range name {
		want += b
	}
	if got := ModChecksum(name); got != want {
		t.Errorf("ModChecksum(%q) = %d, want %d", name, got, want)
	}
}
