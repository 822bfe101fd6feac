package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

const (
	mentorService      = "auracode.mentor.v1.MentorService"
	methodGenerateHint = "/" + mentorService + "/GenerateHint"
	methodEvaluate     = "/" + mentorService + "/Evaluate"
	methodPairProgram  = "/" + mentorService + "/PairProgram"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")

	// ErrMentorResponse is returned when the mentor answers with an error body.
	ErrMentorResponse = errors.New("mentor response returned error")
	// ErrUnhealthy is returned by Health when the mentor is not serving.
	ErrUnhealthy = errors.New("mentor service not serving")
)

// GrpcClient provides a gRPC client to the mentor service. Messages travel
// as google.protobuf.Struct so the mentor can evolve its schema freely.
type GrpcClient struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
	addr   string
	cfg    Config
	logger *slog.Logger
}

// NewGrpcClient connects to the mentor service at cfg.Address.
func NewGrpcClient(cfg Config, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Address == "" {
		cfg.Address = defaults.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = defaults.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = defaults.KeepaliveTimeout
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mentor at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("mentor at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to mentor service", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		health: grpc_health_v1.NewHealthClient(conn),
		addr:   cfg.Address,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health checks if the mentor service is serving.
func (c *GrpcClient) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: mentorService})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrUnhealthy, resp.GetStatus())
	}
	return nil
}

// GenerateHint requests a hint for the given level.
func (c *GrpcClient) GenerateHint(ctx context.Context, req HintRequest) (*HintResponse, error) {
	var resp HintResponse
	if err := c.invoke(ctx, methodGenerateHint, req, &resp); err != nil {
		return nil, fmt.Errorf("generate hint: %w", err)
	}
	return &resp, nil
}

// evaluationWire mirrors the mentor's grading payload. OverallScore is a
// pointer so a missing score can be told apart from zero.
type evaluationWire struct {
	OverallScore *int `json:"overall_score"`
	Categories   []struct {
		Category string `json:"category"`
		Score    int    `json:"score"`
		MaxScore int    `json:"max_score"`
		Feedback string `json:"feedback"`
	} `json:"categories"`
	Summary           string   `json:"summary"`
	Strengths         []string `json:"strengths"`
	Improvements      []string `json:"improvements"`
	RequirementsMet   []string `json:"requirements_met"`
	RequirementsUnmet []string `json:"requirements_unmet"`
	IsComplete        bool     `json:"is_complete"`
}

// Evaluate grades a submission. Scores are clamped into the rubric range.
func (c *GrpcClient) Evaluate(ctx context.Context, req EvaluationRequest) (*domain.Evaluation, error) {
	var wire evaluationWire
	if err := c.invoke(ctx, methodEvaluate, req, &wire); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return wire.toEvaluation(), nil
}

func (w evaluationWire) toEvaluation() *domain.Evaluation {
	eval := &domain.Evaluation{
		Summary:           w.Summary,
		Strengths:         w.Strengths,
		Improvements:      w.Improvements,
		RequirementsMet:   w.RequirementsMet,
		RequirementsUnmet: w.RequirementsUnmet,
		IsComplete:        w.IsComplete,
	}
	for _, cat := range w.Categories {
		eval.Categories = append(eval.Categories, domain.CategoryScore{
			Name:     cat.Category,
			Score:    cat.Score,
			Max:      cat.MaxScore,
			Feedback: cat.Feedback,
		})
	}
	if w.OverallScore != nil {
		eval.OverallScore = *w.OverallScore
	}
	eval.Normalize(w.OverallScore != nil)
	return eval
}

// Pair streams next-step suggestions from the mentor.
func (c *GrpcClient) Pair(ctx context.Context, req PairRequest) iter.Seq2[*PairSuggestion, error] {
	return func(yield func(*PairSuggestion, error) bool) {
		in, err := toStruct(req)
		if err != nil {
			yield(nil, fmt.Errorf("pair request encode: %w", err))
			return
		}

		ctx, cancel := context.WithTimeout(ctx, 4*c.cfg.RequestTimeout)
		defer cancel()

		stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, methodPairProgram)
		if err != nil {
			yield(nil, fmt.Errorf("pair request failed: %w", err))
			return
		}
		if err := stream.SendMsg(in); err != nil {
			yield(nil, fmt.Errorf("pair request send: %w", err))
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield(nil, fmt.Errorf("pair request close send: %w", err))
			return
		}

		for {
			out := &structpb.Struct{}
			err := stream.RecvMsg(out)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				c.logger.Error("PairProgram stream error", "error", err, "session_id", req.SessionID)
				yield(nil, fmt.Errorf("pair stream error: %w", err))
				return
			}

			var suggestion PairSuggestion
			if err := fromStruct(out, &suggestion); err != nil {
				yield(nil, err)
				return
			}
			if !yield(&suggestion, nil) {
				return
			}
		}
	}
}

func (c *GrpcClient) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	return fromStruct(out, resp)
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s, nil
}

// fromStruct decodes a mentor message into v. A string "error" field marks
// an application-level failure.
func fromStruct(s *structpb.Struct, v any) error {
	if msg, ok := s.GetFields()["error"]; ok {
		if text := msg.GetStringValue(); text != "" {
			return fmt.Errorf("%w: %s", ErrMentorResponse, text)
		}
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
