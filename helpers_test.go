package batdev

import (
	"errors"
	"testing"
)

func stubPorts(t *testing.T, ports []string, err error) {
	t.Helper()
	orig := getPortsList
	getPortsList = func() ([]string, error) { return ports, err }
	t.Cleanup(func() { getPortsList = orig })
}

func TestSelectPortByPattern(t *testing.T) {
	stubPorts(t, []string{"/dev/tty.Bluetooth", "/dev/cu.usbserial-2", "/dev/cu.usbmodem1101", "/dev/cu.Bluetooth"}, nil)

	got, err := SelectPort("", "/dev/cu.usb*")
	if err != nil {
		t.Fatalf("SelectPort error: %v", err)
	}
	if got != "/dev/cu.usbmodem1101" {
		t.Fatalf("expected first matching port in order, got %q", got)
	}
}

func TestSelectPortNoMatch(t *testing.T) {
	stubPorts(t, []string{"/dev/ttyS0"}, nil)
	if _, err := SelectPort("", "/dev/cu.usb*"); !errors.Is(err, ErrNoPortFound) {
		t.Fatalf("expected ErrNoPortFound, got %v", err)
	}
}

func TestSelectPortListError(t *testing.T) {
	stubPorts(t, nil, errors.New("enumeration failed"))
	if _, err := SelectPort("", "/dev/cu.usb*"); err == nil {
		t.Fatal("expected listing error")
	}
}

func TestSelectPortExplicit(t *testing.T) {
	stubPorts(t, []string{"/dev/ttyACM0", "/dev/ttyUSB0"}, nil)

	got, err := SelectPort("/dev/ttyUSB0", "/dev/cu.usb*")
	if err != nil || got != "/dev/ttyUSB0" {
		t.Fatalf("SelectPort explicit = %q, %v", got, err)
	}

	if _, err = SelectPort("/dev/ttyUSB9", ""); !errors.Is(err, ErrInvalidPortName) {
		t.Fatalf("expected ErrInvalidPortName for absent port, got %v", err)
	}
	if _, err = SelectPort("/dev/tty../../etc/passwd", ""); err == nil {
		t.Fatal("expected error for path traversal")
	}
	if _, err = SelectPort("/home/user/port", ""); err == nil {
		t.Fatal("expected error for non-serial path")
	}
}
