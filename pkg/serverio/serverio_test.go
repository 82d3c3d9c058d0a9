package serverio

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cuemby/vaultline/pkg/wireline"
)

func newPipePair(t *testing.T) (*ServerIO, *ServerIO) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	server := New(TransportPlain, serverConn)
	if _, err := server.AcceptSession(); err != nil {
		t.Fatalf("AcceptSession: %v", err)
	}

	client := New(TransportPlain, clientConn)
	if _, err := client.StartSession(context.Background()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestSessionHandshake(t *testing.T) {
	client, server := newPipePair(t)

	if client.Session() == nil || server.Session() == nil {
		t.Fatal("expected both sides to have a session")
	}
	if client.Session().Nonce != server.Session().Nonce {
		t.Error("nonce mismatch between client and server session views")
	}
}

func TestSendCommandAndGetCommand(t *testing.T) {
	client, server := newPipePair(t)

	id, err := client.SendCommand("JOB_NEW", wireline.CStringArg("jobUUID", "u1"))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cmd, ok := server.GetCommand(ctx)
	if !ok {
		t.Fatal("expected a command")
	}
	if cmd.ID != id || cmd.Name != "JOB_NEW" {
		t.Fatalf("got %+v", cmd)
	}
	v, _ := cmd.Args.Get("jobUUID")
	if v != "u1" {
		t.Errorf("jobUUID = %q", v)
	}
}

func TestExecuteCommandRoundTrip(t *testing.T) {
	client, server := newPipePair(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cmd, ok := server.GetCommand(ctx)
		if !ok {
			t.Error("server expected a command")
			return
		}
		if err := server.SendResult(cmd.ID, true, 0, wireline.CStringArg("state", "running")); err != nil {
			t.Error(err)
		}
	}()

	res, err := client.ExecuteCommand(time.Second, "JOB_STATUS", wireline.CStringArg("jobUUID", "u1"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Completed || res.ErrorCode != 0 || res.Payload != "state=running" {
		t.Fatalf("got %+v", res)
	}
	<-done
}

func TestExecuteCommandTimeout(t *testing.T) {
	client, _ := newPipePair(t)

	_, err := client.ExecuteCommand(20*time.Millisecond, "JOB_STATUS", wireline.CStringArg("jobUUID", "u1"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestCloseWakesWaiters(t *testing.T) {
	client, _ := newPipePair(t)

	resultCh := make(chan error, 1)
	go func() {
		_, err := client.ExecuteCommand(5*time.Second, "JOB_STATUS", wireline.CStringArg("jobUUID", "u1"))
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.Close()

	select {
	case err := <-resultCh:
		if err == nil {
			t.Fatal("expected disconnected error after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("ExecuteCommand did not wake up after Close")
	}
}

func TestResultBeforeWaiterRegisters(t *testing.T) {
	// Reproduces the issue-then-wait race noted in spec §4.5: the
	// result can arrive before WaitResult is called for that id.
	client, server := newPipePair(t)

	id, err := client.SendCommand("JOB_STATUS", wireline.CStringArg("jobUUID", "u1"))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cmd, ok := server.GetCommand(ctx)
	if !ok {
		t.Fatal("expected command")
	}
	if err := server.SendResult(cmd.ID, true, 0, wireline.CStringArg("state", "done")); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond) // let the result land in the pending set first

	res, err := client.WaitResult(id, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res.Payload != "state=done" {
		t.Errorf("payload = %q", res.Payload)
	}
}
