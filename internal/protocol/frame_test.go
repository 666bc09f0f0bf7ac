package protocol

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestDecoderMultipleMessages(t *testing.T) {
	var d Decoder
	msgs, err := d.Feed([]byte("START\x00SET RESO 3\x00STOP\x00"))
	if err != nil {
		t.Fatal(err)
	}
	expect := []string{"START", "SET RESO 3", "STOP"}
	if !reflect.DeepEqual(msgs, expect) {
		t.Errorf("got %q, expect %q", msgs, expect)
	}

	var types []CommandType
	for _, m := range msgs {
		cmd, err := ParseCommand(m)
		if err != nil {
			t.Fatal(err)
		}
		types = append(types, cmd.Type)
	}
	if !reflect.DeepEqual(types, []CommandType{CmdStart, CmdSetReso, CmdStop}) {
		t.Errorf("dispatch order %v", types)
	}
}

func TestDecoderSplitFrame(t *testing.T) {
	var d Decoder
	msgs, _ := d.Feed([]byte("OK:LIST"))
	if len(msgs) != 0 {
		t.Fatalf("partial frame should not produce messages, got %q", msgs)
	}
	if d.Pending() != 7 {
		t.Errorf("pending = %d", d.Pending())
	}
	msgs, _ = d.Feed([]byte("ENING\x00OK:"))
	if !reflect.DeepEqual(msgs, []string{"OK:LISTENING"}) {
		t.Errorf("got %q", msgs)
	}
	msgs, _ = d.Feed([]byte("SET\x00"))
	if !reflect.DeepEqual(msgs, []string{"OK:SET"}) {
		t.Errorf("got %q", msgs)
	}
	if d.Pending() != 0 {
		t.Errorf("pending = %d after full frame", d.Pending())
	}
}

func TestDecoderSkipsEmptyFrames(t *testing.T) {
	var d Decoder
	msgs, _ := d.Feed([]byte("\x00 \x00OK:STOP\n\x00"))
	if !reflect.DeepEqual(msgs, []string{"OK:STOP"}) {
		t.Errorf("got %q", msgs)
	}
}

func TestDecoderOverflow(t *testing.T) {
	var d Decoder
	_, err := d.Feed([]byte(strings.Repeat("A", maxPending+1)))
	if !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("expected ErrFrameTooLong, got %v", err)
	}
	if d.Pending() != 0 {
		t.Errorf("overflowed buffer should be dropped")
	}
}
