package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/slots"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "calendar.availability.v1.AvailabilityService"

	methodIsSlotBookable    = "/" + ServiceName + "/IsSlotBookable"
	methodMonthAvailability = "/" + ServiceName + "/MonthAvailability"
)

// Availability is implemented by *slots.Service.
type Availability interface {
	MonthAvailability(ctx context.Context, eventTypeID string, year int, month time.Month, visitorTZ string) (slots.MonthResult, error)
	Bookable(ctx context.Context, eventTypeID string, start, end time.Time, visitorTZ, excludeBookingID string) (bool, error)
}

// AvailabilityServer is the RPC surface. Messages are google.protobuf.Struct so the service
// needs no generated code:
//
//	IsSlotBookable    {event_type_id, start_time, end_time, timezone, exclude_booking_id?} -> {bookable}
//	MonthAvailability {event_type_id, month: "YYYY-MM", timezone} -> slots.MonthResult as JSON
type AvailabilityServer interface {
	IsSlotBookable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	MonthAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IsSlotBookable", Handler: unary(methodIsSlotBookable, AvailabilityServer.IsSlotBookable)},
		{MethodName: "MonthAvailability", Handler: unary(methodMonthAvailability, AvailabilityServer.MonthAvailability)},
	},
	Streams: []grpc.StreamDesc{},
}

func unary(fullMethod string, call func(AvailabilityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AvailabilityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AvailabilityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type server struct {
	availability Availability
}

func Register(grpcServer *grpc.Server, a Availability) {
	grpcServer.RegisterService(&ServiceDesc, &server{availability: a})
}

func (s *server) IsSlotBookable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start, err := timeField(req, "start_time")
	if err != nil {
		return nil, err
	}
	end, err := timeField(req, "end_time")
	if err != nil {
		return nil, err
	}
	ok, err := s.availability.Bookable(ctx,
		stringField(req, "event_type_id"),
		start, end,
		stringField(req, "timezone"),
		stringField(req, "exclude_booking_id"),
	)
	if err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"bookable": structpb.NewBoolValue(ok)}}, nil
}

func (s *server) MonthAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	month, err := time.Parse("2006-01", stringField(req, "month"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "month must be YYYY-MM")
	}
	res, err := s.availability.MonthAvailability(ctx, stringField(req, "event_type_id"), month.Year(), month.Month(), stringField(req, "timezone"))
	if err != nil {
		return nil, toStatus(err)
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func stringField(req *structpb.Struct, key string) string {
	return strings.TrimSpace(req.GetFields()[key].GetStringValue())
}

func timeField(req *structpb.Struct, key string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, stringField(req, key))
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s must be RFC3339", key)
	}
	return t, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, availability.ErrScheduleNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, availability.ErrInvalidInterval),
		errors.Is(err, availability.ErrInvalidTimezone),
		errors.Is(err, availability.ErrInvalidDuration),
		errors.Is(err, slots.ErrDurationMismatch),
		errors.Is(err, slots.ErrOutsideHorizon):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, "availability lookup failed")
	}
}
