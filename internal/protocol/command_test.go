package protocol

import (
	"errors"
	"testing"
)

func TestCommandRoundTrip(t *testing.T) {
	tests := []Command{
		Start(),
		SetIP("127.0.0.1", "9000"),
		SetIP("fe80::1", "7236"),
		SetConnectionMode(0),
		SetResolution(3),
		SetMultisink(true),
		SetMultisink(false),
		SetStreaming(true, "file:///tmp/clip.ts"),
		SetStreaming(false, ""),
		Pause(),
		Resume(),
		Stop(),
		Destroy(),
	}

	for _, tt := range tests {
		var d Decoder
		msgs, err := d.Feed(Encode(tt.String()))
		if err != nil || len(msgs) != 1 {
			t.Fatalf("%s: decode produced %v, %v", tt, msgs, err)
		}
		got, err := ParseCommand(msgs[0])
		if err != nil {
			t.Fatalf("%s: parse error %v", tt, err)
		}
		if got != tt {
			t.Errorf("round trip mismatch: sent %+v, got %+v", tt, got)
		}
	}
}

func TestParseCommandWireText(t *testing.T) {
	tests := []struct {
		msg    string
		expect Command
	}{
		{"START", Start()},
		{"SET IP 192.168.49.1:2022", SetIP("192.168.49.1", "2022")},
		{"SET CM 0", SetConnectionMode(0)},
		{"SET RESO 33", SetResolution(33)},
		{"SET MULTISINK 1", SetMultisink(true)},
		{"  STOP \n", Stop()},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.msg)
		if err != nil {
			t.Errorf("ParseCommand(%q) error: %v", tt.msg, err)
			continue
		}
		if got != tt.expect {
			t.Errorf("ParseCommand(%q) = %+v, expect %+v", tt.msg, got, tt.expect)
		}
	}
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		msg string
		err error
	}{
		{"", ErrEmptyCommand},
		{"HELLO", ErrUnknownCommand},
		{"SET IP 127.0.0.1", ErrMalformed},
		{"SET CM wifi", ErrMalformed},
		{"SET RESO -1", ErrMalformed},
		{"SET MULTISINK 2", ErrMalformed},
		{"SET STREAMING 1", ErrMalformed},
	}
	for _, tt := range tests {
		if _, err := ParseCommand(tt.msg); !errors.Is(err, tt.err) {
			t.Errorf("ParseCommand(%q) error = %v, expect %v", tt.msg, err, tt.err)
		}
	}
}

func TestCommandTypeString(t *testing.T) {
	if CmdSetMultisink.String() != "SET MULTISINK" {
		t.Errorf("unexpected %q", CmdSetMultisink.String())
	}
	if CommandType(0).String() != "CommandType(0)" {
		t.Errorf("unexpected %q", CommandType(0).String())
	}
}
