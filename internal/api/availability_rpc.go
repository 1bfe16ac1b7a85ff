package api

import (
	"context"
	"fmt"
	"math"
	"time"

	"cabinres/internal/domain"
	"cabinres/internal/service"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// CheckAvailabilityMethod is the full gRPC method name of the availability check.
const CheckAvailabilityMethod = "/" + ServiceName + "/CheckAvailability"

// AvailabilityChecker answers read-only availability questions.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, cabinID int64, start, end time.Time, excludeID int64) (*service.AvailabilityResult, error)
}

type bookingRPC interface {
	checkAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Сообщения передаются как google.protobuf.Struct, отдельного .proto нет.
var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*bookingRPC)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckAvailability", Handler: checkAvailabilityHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func checkAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bookingRPC).checkAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckAvailabilityMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bookingRPC).checkAvailability(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type availabilityRPC struct {
	checker AvailabilityChecker
	loc     *time.Location
	log     zerolog.Logger
}

func (r *availabilityRPC) checkAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	cabinID, err := idField(fields, "cabin_id", true)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	exclude, err := idField(fields, "exclude", false)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	start, err := parseDate(fields["start"].GetStringValue(), r.loc)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "start: %v", err)
	}
	end, err := parseDate(fields["end"].GetStringValue(), r.loc)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "end: %v", err)
	}

	res, err := r.checker.CheckAvailability(ctx, cabinID, start, end, exclude)
	if err != nil {
		code := codeFor(domain.Kind(err))
		if code == codes.Internal {
			r.log.Error().Err(err).Int64("cabin_id", cabinID).Msg("availability check failed")
			return nil, status.Error(codes.Internal, "internal error")
		}
		return nil, status.Error(code, err.Error())
	}

	conflicts := make([]any, 0, len(res.Conflicts))
	for _, id := range res.Conflicts {
		conflicts = append(conflicts, id)
	}
	return structpb.NewStruct(map[string]any{
		"cabin_id":  res.CabinID,
		"start":     res.Start.In(r.loc).Format(dayLayout),
		"end":       res.End.In(r.loc).Format(dayLayout),
		"available": res.Available,
		"rule":      res.Rule,
		"conflicts": conflicts,
	})
}

// idField reads a positive integral number; an absent optional field is zero.
func idField(fields map[string]*structpb.Value, name string, required bool) (int64, error) {
	v, ok := fields[name]
	if !ok || v.GetKind() == nil {
		if required {
			return 0, fmt.Errorf("%s is required", name)
		}
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	if n.NumberValue <= 0 || n.NumberValue != math.Trunc(n.NumberValue) || n.NumberValue > math.MaxInt64 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return int64(n.NumberValue), nil
}

func codeFor(kind string) codes.Code {
	switch kind {
	case "validation":
		return codes.InvalidArgument
	case "conflict":
		return codes.FailedPrecondition
	case "concurrency":
		return codes.Aborted
	case "unauthorized":
		return codes.PermissionDenied
	case "not_found":
		return codes.NotFound
	default:
		return codes.Internal
	}
}
