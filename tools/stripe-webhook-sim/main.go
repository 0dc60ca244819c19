// Command stripe-webhook-sim posts a signed checkout webhook to a local booking-service so the
// pending_payment -> booked (or expired) transition can be exercised without Stripe.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/config"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL   = flag.String("base-url", config.String("BASE_URL", "http://localhost:8083"), "booking-service base url")
		evtType   = flag.String("type", config.String("STRIPE_EVENT_TYPE", "checkout.session.completed"), "checkout.session.completed or checkout.session.expired")
		bookingID = flag.String("booking-id", config.String("BOOKING_ID", ""), "booking_id metadata")
		secret    = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if *secret == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if _, err := uuid.Parse(*bookingID); err != nil {
		fatal("BOOKING_ID must be a booking uuid")
	}

	now := time.Now().UTC()
	payload, err := buildEventJSON("evt_test_"+strings.ReplaceAll(uuid.NewString(), "-", ""), *evtType, now, *bookingID)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, bookingID string) ([]byte, error) {
	status := "complete"
	paymentStatus := "paid"
	switch eventType {
	case "checkout.session.completed":
	case "checkout.session.expired":
		status = "expired"
		paymentStatus = "unpaid"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":      eventID,
		"object":  "event",
		"created": t.Unix(),
		"type":    eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_test_" + strings.ReplaceAll(bookingID, "-", ""),
				"object":              "checkout.session",
				"mode":                "payment",
				"status":              status,
				"payment_status":      paymentStatus,
				"client_reference_id": bookingID,
				"metadata": map[string]any{
					"booking_id": bookingID,
				},
			},
		},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
