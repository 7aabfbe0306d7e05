package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BDNK1/ivrflow/runtime"
	"github.com/BDNK1/ivrflow/runtime/channeltest"
)

func TestCollect_TerminatorEndsCollection(t *testing.T) {
	ch := channeltest.New("c1", "100", "1234#")

	start := time.Now()
	got, err := Collect(context.Background(), ch, CollectOptions{
		MaxDigits:   10,
		Timeout:     5 * time.Second,
		Terminators: "#",
	})
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if got != "1234" {
		t.Errorf("Collect() = %q, want %q", got, "1234")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("terminator should end collection immediately, took %v", elapsed)
	}
}

func TestCollect_MaxDigitsEndsCollection(t *testing.T) {
	ch := channeltest.New("c1", "100", "56789")

	start := time.Now()
	got, err := Collect(context.Background(), ch, CollectOptions{
		MaxDigits:   4,
		Timeout:     5 * time.Second,
		Terminators: "#",
	})
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if got != "5678" {
		t.Errorf("Collect() = %q, want %q", got, "5678")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("max digits should end collection immediately, took %v", elapsed)
	}

	time.Sleep(20 * time.Millisecond)
	if n := ch.Delivered(); n != 4 {
		t.Errorf("delivered %d digits, want 4 (fifth digit must not be observed)", n)
	}
}

func TestCollect_TimeoutWithoutInput(t *testing.T) {
	ch := channeltest.New("c1", "100")

	start := time.Now()
	got, err := Collect(context.Background(), ch, CollectOptions{
		MaxDigits:   10,
		Timeout:     50 * time.Millisecond,
		Terminators: "#",
	})
	if err != nil {
		t.Fatalf("empty collection is not an error, got %v", err)
	}
	if got != "" {
		t.Errorf("Collect() = %q, want empty", got)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned before the timeout: %v", elapsed)
	}
}

func TestCollect_EachDigitResetsTimer(t *testing.T) {
	ch := channeltest.New("c1", "100", "123")
	ch.DigitDelay = 40 * time.Millisecond

	// Three digits take ~120ms in total, longer than one timeout window.
	got, err := Collect(context.Background(), ch, CollectOptions{
		MaxDigits:   10,
		Timeout:     100 * time.Millisecond,
		Terminators: "#",
	})
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if got != "123" {
		t.Errorf("Collect() = %q, want %q", got, "123")
	}
}

func TestCollect_ValidDigitsFilter(t *testing.T) {
	ch := channeltest.New("c1", "100", "1932#")

	got, err := Collect(context.Background(), ch, CollectOptions{
		MaxDigits:   10,
		Timeout:     time.Second,
		Terminators: "#",
		ValidDigits: "12",
	})
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if got != "12" {
		t.Errorf("Collect() = %q, want %q", got, "12")
	}
}

func TestCollect_Defaults(t *testing.T) {
	opts := CollectOptions{}.withDefaults()
	if opts.MaxDigits != DefaultMaxDigits {
		t.Errorf("MaxDigits = %d, want %d", opts.MaxDigits, DefaultMaxDigits)
	}
	if opts.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", opts.Timeout, DefaultTimeout)
	}
}

func TestCollect_ChannelGoneDuringCollection(t *testing.T) {
	ch := channeltest.New("c1", "100")

	go func() {
		time.Sleep(20 * time.Millisecond)
		ch.Gone()
	}()

	_, err := Collect(context.Background(), ch, CollectOptions{Timeout: 5 * time.Second})
	if !runtime.IsChannelGone(err) {
		t.Errorf("expected channel gone, got %v", err)
	}
}

func TestCollect_CancelledCallReportsCause(t *testing.T) {
	ch := channeltest.New("c1", "100", "12")
	ch.DigitDelay = time.Second

	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel(runtime.ErrChannelGone)
	}()

	_, err := Collect(ctx, ch, CollectOptions{Timeout: 5 * time.Second})
	if !errors.Is(err, runtime.ErrChannelGone) {
		t.Errorf("expected ErrChannelGone cause, got %v", err)
	}
}

func TestCollect_ChannelAlreadyGone(t *testing.T) {
	ch := channeltest.New("c1", "100", "1")
	ch.Gone()

	_, err := Collect(context.Background(), ch, CollectOptions{Timeout: time.Second})
	if !runtime.IsChannelGone(err) {
		t.Errorf("expected channel gone, got %v", err)
	}
}
