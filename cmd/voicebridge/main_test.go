package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/agenix-ai/voicebridge/pkg/bridge/config"
	"github.com/agenix-ai/voicebridge/pkg/bridge/store"
)

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, bridgeDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		newStore: func(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
			t.Fatalf("newStore should not be called when config load fails")
			return nil, nil, nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if got := stderr.String(); got == "" {
		t.Fatalf("expected stderr output for startup error")
	}
}

func TestRunMain_ReturnsNonZeroWhenStoreFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, bridgeDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{
				Addr:              "127.0.0.1:0",
				VoiceAIAPIKey:     "key",
				StoreBackend:      config.StoreRedis,
				ReadHeaderTimeout: time.Second,
			}, nil
		},
		newStore: func(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
			return nil, nil, errors.New("redis down")
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
	}

	srv := buildHTTPServer(cfg, nil)
	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
}

func TestNewStore_Memory(t *testing.T) {
	t.Parallel()

	s, closeStore, err := newStore(context.Background(), config.Config{StoreBackend: config.StoreMemory})
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	defer closeStore()
	if _, ok := s.(*store.Memory); !ok {
		t.Fatalf("store = %T, want *store.Memory", s)
	}
}

func TestNewStore_UnknownBackend(t *testing.T) {
	t.Parallel()

	if _, _, err := newStore(context.Background(), config.Config{StoreBackend: "etcd"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestRunBridge_ServesAndShutsDownOnSignal(t *testing.T) {
	t.Parallel()

	sigCh := make(chan chan<- os.Signal, 1)
	deps := bridgeDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{
				Addr:                "127.0.0.1:0",
				VoiceAIAPIKey:       "key",
				DefaultGreeting:     "Hello!",
				SampleRate:          8000,
				BufferSizeMs:        60,
				StoreBackend:        config.StoreMemory,
				ReadHeaderTimeout:   time.Second,
				TeardownTimeout:     time.Second,
				ShutdownGracePeriod: time.Second,
			}, nil
		},
		newStore: newStore,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			sigCh <- c
		},
		signalStop: func(c chan<- os.Signal) {},
	}

	done := make(chan error, 1)
	go func() { done <- runBridge(context.Background(), nil, deps) }()

	select {
	case c := <-sigCh:
		c <- os.Interrupt
	case <-time.After(3 * time.Second):
		t.Fatal("signal channel never registered")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runBridge: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runBridge did not shut down")
	}
}
