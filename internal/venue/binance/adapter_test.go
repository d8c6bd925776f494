package binance

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestDepthFrameDecodesTopOfBook(t *testing.T) {
	payload := []byte(`{"stream":"btcusdc@depth5@100ms","data":{"b":[["49999.50","1.2"]],"a":[["50000.25","0.8"]]}}`)
	var frame depthUpdateFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	event, ok := parseDepthFrame(frame)
	if !ok {
		t.Fatalf("expected frame to parse")
	}
	if event.Symbol != "BTCUSDC" {
		t.Fatalf("expected symbol BTCUSDC, got %s", event.Symbol)
	}
	if event.Bid.Format(2) != "49999.50" {
		t.Fatalf("unexpected bid: %s", event.Bid.Format(2))
	}
	if event.Ask.Format(2) != "50000.25" {
		t.Fatalf("unexpected ask: %s", event.Ask.Format(2))
	}
}

func TestDepthFrameRejectsEmptyStreamName(t *testing.T) {
	var frame depthUpdateFrame
	if _, ok := parseDepthFrame(frame); ok {
		t.Fatalf("expected empty stream name to fail parsing")
	}
}

func TestParseLevelRejectsMalformedNumbers(t *testing.T) {
	if _, _, ok := parseLevel([2]string{"not-a-number", "1"}); ok {
		t.Fatalf("expected malformed price to fail")
	}
}

func TestStreamSymbolRoundTrip(t *testing.T) {
	symbol := streamToSymbol("ethusdc@depth5@100ms")
	if symbol != "ETHUSDC" {
		t.Fatalf("expected ETHUSDC, got %s", symbol)
	}
	if got := nativeToStream(symbol); got != "ethusdc@depth5@100ms" {
		t.Fatalf("unexpected stream name: %s", got)
	}
}
