package icmp_test

import (
	"bytes"
	"testing"

	"github.com/hobbyos-go/kernelcore/internal/net/icmp"
)

func TestEchoRequestProducesValidReply(t *testing.T) {
	t.Parallel()

	req := icmp.BuildEcho(icmp.TypeEchoRequest, 42, 1, []byte("ping"))

	reply, matched, err := icmp.HandleMessage(req, 0, 0)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if matched {
		t.Fatalf("echo request should not report matched=true")
	}

	if reply == nil || reply[0] != icmp.TypeEchoReply {
		t.Fatalf("expected an echo reply message")
	}

	if !bytes.Equal(reply[icmp.HeaderLen:], []byte("ping")) {
		t.Fatalf("reply payload mismatch: %q", reply[icmp.HeaderLen:])
	}
}

func TestEchoReplyMatchesOutstandingRequest(t *testing.T) {
	t.Parallel()

	reply := icmp.BuildEcho(icmp.TypeEchoReply, 7, 3, nil)

	_, matched, err := icmp.HandleMessage(reply, 7, 3)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if !matched {
		t.Fatalf("expected matched=true for an echo reply with matching id/seq")
	}
}
