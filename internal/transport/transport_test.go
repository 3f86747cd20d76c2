package transport

import (
	"context"
	"crypto/x509"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/peer-chat/internal/protocol"
)

func TestTransportCreateAndClose(t *testing.T) {
	tr, err := NewTransport(":0")
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}
	defer func() { _ = tr.Close() }()

	addr := tr.LocalAddr()
	if addr == nil {
		t.Error("Expected non-nil local address")
	}
}

func TestTransportDialAccept(t *testing.T) {
	server, err := NewTransport(":0")
	if err != nil {
		t.Fatalf("NewTransport server failed: %v", err)
	}
	defer func() { _ = server.Close() }()

	client, err := NewTransport(":0")
	if err != nil {
		t.Fatalf("NewTransport client failed: %v", err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverAddr := server.LocalAddr().String()

	accepted := make(chan *Peer, 1)
	errChan := make(chan error, 1)

	go func() {
		peer, err := server.Accept(ctx)
		if err != nil {
			errChan <- err
			return
		}
		accepted <- peer
	}()

	clientPeer, err := client.Dial(ctx, serverAddr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = clientPeer.Close() }()

	select {
	case serverPeer := <-accepted:
		defer func() { _ = serverPeer.Close() }()
		if serverPeer.RemoteAddr() == "" {
			t.Error("Expected non-empty remote address")
		}
	case err := <-errChan:
		t.Fatalf("Accept failed: %v", err)
	case <-ctx.Done():
		t.Fatal("Timeout waiting for connection")
	}
}

func TestPeerSendReceive(t *testing.T) {
	server, err := NewTransport(":0")
	if err != nil {
		t.Fatalf("NewTransport server failed: %v", err)
	}
	defer func() { _ = server.Close() }()

	client, err := NewTransport(":0")
	if err != nil {
		t.Fatalf("NewTransport client failed: %v", err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverAddr := server.LocalAddr().String()

	received := make(chan protocol.Message, 1)
	errChan := make(chan error, 1)

	go func() {
		peer, err := server.Accept(ctx)
		if err != nil {
			errChan <- err
			return
		}
		defer func() { _ = peer.Close() }()

		msg, err := peer.Receive(ctx)
		if err != nil {
			errChan <- err
			return
		}
		received <- msg
	}()

	clientPeer, err := client.Dial(ctx, serverAddr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = clientPeer.Close() }()

	err = clientPeer.Send(ctx, &protocol.Ping{})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-received:
		if _, ok := msg.(*protocol.Ping); !ok {
			t.Errorf("Expected *Ping, got %T", msg)
		}
	case err := <-errChan:
		t.Fatalf("Receive failed: %v", err)
	case <-ctx.Done():
		t.Fatal("Timeout waiting for message")
	}
}

func TestPeerBidirectionalExchange(t *testing.T) {
	server, err := NewTransport(":0")
	if err != nil {
		t.Fatalf("NewTransport server failed: %v", err)
	}
	defer func() { _ = server.Close() }()

	client, err := NewTransport(":0")
	if err != nil {
		t.Fatalf("NewTransport client failed: %v", err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverAddr := server.LocalAddr().String()

	errChan := make(chan error, 1)
	clientDone := make(chan struct{})

	go func() {
		peer, err := server.Accept(ctx)
		if err != nil {
			errChan <- err
			return
		}
		defer func() { _ = peer.Close() }()

		msg, err := peer.Receive(ctx)
		if err != nil {
			errChan <- err
			return
		}

		join, ok := msg.(*protocol.Join)
		if !ok {
			errChan <- fmt.Errorf("expected *Join, got %T", msg)
			return
		}

		err = peer.Send(ctx, &protocol.Welcome{
			PeerID: join.PeerID,
			Topic:  join.Topic,
			Peers:  []string{"peer-b"},
		})
		if err != nil {
			errChan <- err
			return
		}

		<-clientDone
	}()

	clientPeer, err := client.Dial(ctx, serverAddr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = clientPeer.Close() }()

	err = clientPeer.Send(ctx, &protocol.Join{PeerID: "peer-a", Topic: "room"})
	if err != nil {
		t.Fatalf("Send Join failed: %v", err)
	}

	msg, err := clientPeer.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive Welcome failed: %v", err)
	}
	close(clientDone)

	res, ok := msg.(*protocol.Welcome)
	if !ok {
		t.Fatalf("Expected *Welcome, got %T", msg)
	}

	if len(res.Peers) != 1 {
		t.Errorf("Expected 1 peer, got %d", len(res.Peers))
	}

	if res.Peers[0] != "peer-b" {
		t.Errorf("Expected 'peer-b', got '%s'", res.Peers[0])
	}

	select {
	case err := <-errChan:
		if err != nil {
			t.Fatalf("Server error: %v", err)
		}
	default:
	}
}

func TestSelfSignedCert(t *testing.T) {
	now := time.Now()
	cert, err := selfSignedCert(now)
	if err != nil {
		t.Fatalf("selfSignedCert failed: %v", err)
	}
	if len(cert.Certificate) != 1 {
		t.Fatalf("Expected one certificate, got %d", len(cert.Certificate))
	}

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate failed: %v", err)
	}
	if parsed.Subject.CommonName != serverName {
		t.Errorf("Expected common name %s, got %s", serverName, parsed.Subject.CommonName)
	}
	if !parsed.NotAfter.After(now.Add(certLifetime - time.Minute)) {
		t.Errorf("Certificate expires too early: %v", parsed.NotAfter)
	}
}

func TestTLSConfigsAgreeOnProtocol(t *testing.T) {
	server, err := serverTLSConfig()
	if err != nil {
		t.Fatalf("serverTLSConfig failed: %v", err)
	}
	client := clientTLSConfig()

	if server.NextProtos[0] != alpn || client.NextProtos[0] != alpn {
		t.Errorf("Expected ALPN %s on both sides", alpn)
	}
	if len(client.Certificates) != 0 {
		t.Error("Client should not present a certificate")
	}
}

func TestPeerConcurrentSends(t *testing.T) {
	server, err := NewTransport("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTransport server failed: %v", err)
	}
	defer func() { _ = server.Close() }()

	client, err := NewTransport("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTransport client failed: %v", err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const total = 50
	counted := make(chan int, 1)
	errChan := make(chan error, 1)

	go func() {
		peer, err := server.Accept(ctx)
		if err != nil {
			errChan <- err
			return
		}
		defer func() { _ = peer.Close() }()

		n := 0
		for n < total {
			msg, err := peer.Receive(ctx)
			if err != nil {
				errChan <- err
				return
			}
			if _, ok := msg.(*protocol.Signal); ok {
				n++
			}
		}
		counted <- n
	}()

	clientPeer, err := client.Dial(ctx, server.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = clientPeer.Close() }()

	var wg sync.WaitGroup
	for i := range total {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := []byte(fmt.Sprintf("payload-%d", i))
			if err := clientPeer.Send(ctx, &protocol.Signal{To: "b", Payload: payload}); err != nil {
				t.Errorf("Send #%d failed: %v", i, err)
			}
		}()
	}
	wg.Wait()

	select {
	case n := <-counted:
		if n != total {
			t.Errorf("Expected %d signals, got %d", total, n)
		}
	case err := <-errChan:
		t.Fatalf("Receive failed: %v", err)
	case <-ctx.Done():
		t.Fatal("Timeout waiting for signals")
	}
}
