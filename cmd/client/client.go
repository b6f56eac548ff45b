package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"ome/internal/common"
	"ome/internal/protocol"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	// 1. CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange gateway")
	mpid := flag.String("mpid", "", "Market participant id, at most 10 chars (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel']")

	// Order Parameters
	ticker := flag.String("ticker", "TPCF0101", "Ticker symbol (max 8 chars)")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	priceStr := flag.String("price", "1.00", "Limit price as a decimal, e.g. 12.34")
	decimals := flag.Int("decimals", 2, "Decimal places of one price tick")
	qtyStr := flag.String("qty", "100", "Quantity or comma-separated list (e.g. 100,200,500)")

	// Order id, also used by cancel
	orderID := flag.String("id", "", "Order id, at most 10 chars; generated when empty")

	flag.Parse()

	// Validation
	if *mpid == "" {
		fmt.Println("Error: -mpid is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	// Connect to Server
	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatal().Err(err).Str("server", *serverAddr).Msg("failed to connect to server")
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *mpid)

	// Identify the session before anything else.
	if err := send(conn, protocol.Heartbeat{MPID: *mpid}); err != nil {
		log.Fatal().Err(err).Msg("failed to send heartbeat")
	}

	// Start Listening for Reports (Async)
	go readReports(conn)

	// Execute Action
	switch strings.ToLower(*action) {
	case "place":
		side := common.Buy
		if strings.ToLower(*sideStr) == "sell" {
			side = common.Sell
		}

		ticks, err := parsePrice(*priceStr, int32(*decimals))
		if err != nil {
			log.Fatal().Err(err).Str("price", *priceStr).Msg("invalid price")
		}

		quantities := parseQuantities(*qtyStr)
		for i, q := range quantities {
			id := *orderID
			switch {
			case id == "":
				id = newOrderID()
			case len(quantities) > 1:
				id = fmt.Sprintf("%s%d", id, i)
			}

			err := send(conn, protocol.OrderEntry{
				MPID:    *mpid,
				OrderID: id,
				Ticker:  *ticker,
				Side:    byte(side),
				Price:   ticks,
				Size:    q,
			})
			if err != nil {
				log.Error().Err(err).Uint32("qty", q).Msg("failed to place order")
			} else {
				fmt.Printf("-> Sent %s Order %s: %s %d @ %s\n", side, id, *ticker, q, *priceStr)
			}
		}

	case "cancel":
		if *orderID == "" {
			log.Fatal().Msg("-id is required for cancellation")
		}
		err := send(conn, protocol.CancelOrder{MPID: *mpid, OrderID: *orderID})
		if err != nil {
			log.Error().Err(err).Msg("failed to send cancel request")
		} else {
			fmt.Printf("-> Sent Cancel Request for %s\n", *orderID)
		}

	default:
		log.Fatal().Str("action", *action).Msg("unknown action")
	}

	// Keep the client alive to receive execution reports
	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

func send(conn net.Conn, msg protocol.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	return protocol.WriteFrame(conn, payload)
}

// parsePrice converts a display price to ticks of 10^-decimals.
func parsePrice(input string, decimals int32) (uint32, error) {
	price, err := decimal.NewFromString(input)
	if err != nil {
		return 0, err
	}
	ticker := common.TickerConfiguration{MinPrice: 1, MaxPrice: 1<<32 - 1, Decimals: decimals}
	return ticker.Ticks(price)
}

// parseQuantities splits a comma-separated string into a slice of uint32
func parseQuantities(input string) []uint32 {
	parts := strings.Split(input, ",")
	var result []uint32
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 32); err == nil {
			result = append(result, uint32(val))
		} else {
			log.Warn().Str("qty", p).Msg("invalid quantity, skipping")
		}
	}
	return result
}

func newOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:protocol.OrderIDLen]
}

// readReports continuously reads and prints frames sent by the gateway
func readReports(conn net.Conn) {
	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Error().Err(err).Msg("connection lost")
			}
			os.Exit(0)
		}

		if frame[0] == protocol.HeartbeatType {
			if hb, err := protocol.DecodeHeartbeat(frame); err == nil {
				fmt.Printf("\n[SESSION] bound as %s\n", hb.MPID)
			} else {
				fmt.Println("\n[SESSION] server asked for a heartbeat")
			}
			continue
		}

		report, err := protocol.DecodeOutbound(frame)
		if err != nil {
			log.Error().Err(err).Msg("unable to decode report")
			continue
		}

		switch r := report.(type) {
		case protocol.Accepted:
			fmt.Printf("\n[ACCEPTED] %s %s %s %d @ %d\n", r.OrderID, common.Side(r.Side), r.Ticker, r.Size, r.Price)
		case protocol.Executed:
			fmt.Printf("\n[EXECUTION] %s %s | Qty: %d | Price: %d | Buyer: %s | Seller: %s | Trade: %s\n",
				r.OrderID, r.Ticker, r.Size, r.Price, r.BuyerMPID, r.SellerMPID, r.TradeID)
		case protocol.Canceled:
			fmt.Printf("\n[CANCELED] %s %s | Qty: %d\n", r.OrderID, r.Ticker, r.DecrementedShares)
		case protocol.Rejected:
			fmt.Printf("\n[REJECTED] %s %s | Reason: %c\n", r.OrderID, r.Ticker, r.Reason)
		}
	}
}
