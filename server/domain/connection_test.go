package domain_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"go.uber.org/mock/gomock"

	"socketcalc/server/domain"
	"socketcalc/server/domain/mocks"
)

func TestNewConnection_RequiresTransport(t *testing.T) {
	if _, err := domain.NewConnection(nil); !errors.Is(err, domain.ErrInitializationFailed) {
		t.Fatalf("expected ErrInitializationFailed, got %v", err)
	}
}

func TestConnection_ReadWriteDelegates(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().RemoteAddr().Return("127.0.0.1:5555")
	tr.EXPECT().Read(ctx).Return([]byte("2 + 2"), nil)
	tr.EXPECT().Write(ctx, []byte("4.0")).Return(nil)

	c, err := domain.NewConnection(tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Peer() != "127.0.0.1:5555" {
		t.Errorf("Peer = %q", c.Peer())
	}
	data, err := c.Read(ctx)
	if err != nil || string(data) != "2 + 2" {
		t.Fatalf("Read = %q, %v", data, err)
	}
	if err := c.Write(ctx, []byte("4.0")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
}

func TestConnection_ReadPropagatesEOF(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().RemoteAddr().Return("peer")
	tr.EXPECT().Read(ctx).Return(nil, io.EOF)

	c, err := domain.NewConnection(tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Read(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestConnection_CloseOnce(t *testing.T) {
	ctrl := gomock.NewController(t)

	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().RemoteAddr().Return("peer")
	tr.EXPECT().Close().Return(nil).Times(1)

	c, err := domain.NewConnection(tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Close(domain.ClosePeer) {
		t.Fatalf("first Close returned false")
	}
	if c.Close(domain.CloseShutdown) {
		t.Fatalf("second Close returned true")
	}
	if got := c.Session().CloseReason(); got != domain.ClosePeer {
		t.Errorf("CloseReason = %v, want peer", got)
	}
}
