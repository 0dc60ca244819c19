package grpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/grpcx"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/slots"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the availability service of another booking-service instance.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(ctx context.Context, addr string, opts grpcx.DialOptions) (*Client, error) {
	conn, err := grpcx.Dial(ctx, addr, opts)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) IsSlotBookable(ctx context.Context, eventTypeID string, start, end time.Time, timezone, excludeBookingID string) (bool, error) {
	req, err := structpb.NewStruct(map[string]any{
		"event_type_id":      eventTypeID,
		"start_time":         start.Format(time.RFC3339),
		"end_time":           end.Format(time.RFC3339),
		"timezone":           timezone,
		"exclude_booking_id": excludeBookingID,
	})
	if err != nil {
		return false, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodIsSlotBookable, req, out); err != nil {
		return false, err
	}
	return out.GetFields()["bookable"].GetBoolValue(), nil
}

func (c *Client) MonthAvailability(ctx context.Context, eventTypeID string, year int, month time.Month, timezone string) (slots.MonthResult, error) {
	req, err := structpb.NewStruct(map[string]any{
		"event_type_id": eventTypeID,
		"month":         fmt.Sprintf("%04d-%02d", year, int(month)),
		"timezone":      timezone,
	})
	if err != nil {
		return slots.MonthResult{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodMonthAvailability, req, out); err != nil {
		return slots.MonthResult{}, err
	}
	raw, err := protojson.Marshal(out)
	if err != nil {
		return slots.MonthResult{}, err
	}
	var res slots.MonthResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return slots.MonthResult{}, fmt.Errorf("decode month availability: %w", err)
	}
	return res, nil
}
