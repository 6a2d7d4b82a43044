package isolarcloud

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/solarcloud/internal/rpc"
)

const ServiceName = "solarcloud.plugins.isolarcloud.v1.ISolarCloudService"

type plantsRequest struct {
	PlantIDs []string `json:"plant_ids"`
}

type plantsResponse struct {
	Plants []Plant `json:"plants"`
}

type realtimeRequest struct {
	PlantIDs      []string `json:"plant_ids"`
	MeasurePoints []string `json:"measure_points"`
}

type realtimeResponse struct {
	Plants RealtimeResult `json:"plants"`
}

type measurePointsResponse struct {
	MeasurePoints []MeasurePoint `json:"measure_points"`
}

type supportRequest struct {
	UUID    string `json:"uuid"`
	SetType string `json:"set_type"`
}

type supportResponse struct {
	UUID    string `json:"uuid"`
	SetType string `json:"set_type"`
	Support string `json:"support"`
}

type service struct {
	client *Client
}

func RegisterISolarCloudService(server *grpc.Server, client *Client) {
	rpc.MustRegister(server, newService(client).Service())
}

func newService(client *Client) *service {
	return &service{client: client}
}

func (s *service) Service() rpc.Service {
	return rpc.Service{
		Name: ServiceName,
		Methods: []rpc.Method{
			{Name: "ListPlants", Handler: s.listPlants},
			{Name: "GetPlantDetails", Handler: s.getPlantDetails},
			{Name: "GetRealtimeData", Handler: s.getRealtimeData},
			{Name: "ListMeasurePoints", Handler: s.listMeasurePoints},
			{Name: "CheckSupport", Handler: s.checkSupport},
		},
	}
}

func (s *service) listPlants(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.client == nil {
		return nil, status.Error(codes.FailedPrecondition, "isolarcloud client not configured")
	}
	plants, err := s.client.ListPlants(ctx)
	if err != nil {
		return nil, statusFromError("list plants", err)
	}
	return encode(plantsResponse{Plants: nonNil(plants)})
}

func (s *service) getPlantDetails(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.client == nil {
		return nil, status.Error(codes.FailedPrecondition, "isolarcloud client not configured")
	}
	var req plantsRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ids, err := s.client.ResolvePlants(ctx, req.PlantIDs)
	if err != nil {
		return nil, statusFromError("resolve plants", err)
	}
	plants, err := s.client.PlantDetails(ctx, ids)
	if err != nil {
		return nil, statusFromError("plant details", err)
	}
	return encode(plantsResponse{Plants: nonNil(plants)})
}

func (s *service) getRealtimeData(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.client == nil {
		return nil, status.Error(codes.FailedPrecondition, "isolarcloud client not configured")
	}
	var req realtimeRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ids, err := s.client.ResolvePlants(ctx, req.PlantIDs)
	if err != nil {
		return nil, statusFromError("resolve plants", err)
	}
	result, err := s.client.RealtimeData(ctx, ids, req.MeasurePoints)
	if err != nil {
		return nil, statusFromError("realtime data", err)
	}
	return encode(realtimeResponse{Plants: result})
}

func (s *service) listMeasurePoints(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return encode(measurePointsResponse{MeasurePoints: MeasurePoints()})
}

func (s *service) checkSupport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.client == nil {
		return nil, status.Error(codes.FailedPrecondition, "isolarcloud client not configured")
	}
	var req supportRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if strings.TrimSpace(req.UUID) == "" {
		return nil, status.Error(codes.InvalidArgument, "uuid is required")
	}
	if req.SetType == "" {
		req.SetType = "read"
	}
	setType, err := ParseSetType(req.SetType)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	support, err := s.client.ParamConfigVerification(ctx, req.UUID, setType)
	if err != nil {
		return nil, statusFromError("check support", err)
	}
	return encode(supportResponse{UUID: req.UUID, SetType: req.SetType, Support: support.String()})
}

// statusFromError maps caller mistakes to InvalidArgument and vendor or
// connectivity failures to Unavailable.
func statusFromError(op string, err error) error {
	switch {
	case IsBadRequest(err):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: %v", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	case isRateLimit(err):
		return status.Errorf(codes.ResourceExhausted, "%s: %v", op, err)
	case IsRemote(err), isHTTPStatus(err):
		return status.Errorf(codes.Unavailable, "%s: %v", op, err)
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

func isHTTPStatus(err error) bool {
	var httpErr HTTPStatusError
	return errors.As(err, &httpErr)
}

func encode(v any) (*structpb.Struct, error) {
	out, err := rpc.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func nonNil(plants []Plant) []Plant {
	if plants == nil {
		return []Plant{}
	}
	return plants
}
