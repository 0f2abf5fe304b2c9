package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/danghamo/deskd/internal/api/jsonrpcx"
	"github.com/danghamo/deskd/internal/desk"
	"github.com/danghamo/deskd/pkg/logger"
)

// DeskHandler handles desk-related HTTP requests with JSON-RPC 2.0 format
type DeskHandler struct {
	logger     *logger.Logger
	controller *desk.PositionController
	source     desk.ConfigSource
}

// NewDeskHandler creates a new desk handler
func NewDeskHandler(log *logger.Logger, controller *desk.PositionController, source desk.ConfigSource) *DeskHandler {
	return &DeskHandler{
		logger:     log.WithComponent("desk-handler"),
		controller: controller,
		source:     source,
	}
}

// MoveRequest holds desk.Move parameters
type MoveRequest struct {
	Position string `json:"position"`
}

// MoveResponse is the desk.Move result
type MoveResponse struct {
	Position string `json:"position"`
	Nagging  bool   `json:"nagging"`
}

// PositionResponse is the desk.Position result. Position is null before the
// first successful move.
type PositionResponse struct {
	Position *string `json:"position"`
	Nagging  bool    `json:"nagging"`
	NagArmed bool    `json:"nag_armed"`
}

// PositionsResponse is the desk.Positions result
type PositionsResponse struct {
	Positions map[string]float64 `json:"positions"`
}

// HandleMove handles POST /api/v1/desk.Move
func (h *DeskHandler) HandleMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonrpcx.WithError(r, nil, jsonrpcx.MethodNotFound, "Method not allowed")
		return
	}

	req, err := jsonrpcx.ParseRequest(r)
	if err != nil {
		jsonrpcx.WithError(r, nil, jsonrpcx.ParseError, "Invalid JSON-RPC request")
		return
	}

	var params MoveRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		jsonrpcx.WithError(r, req.ID, jsonrpcx.InvalidParams, "Invalid params")
		return
	}

	if params.Position == "" {
		jsonrpcx.WithError(r, req.ID, jsonrpcx.InvalidParams, "Position is required")
		return
	}

	if err := h.controller.Apply(r.Context(), desk.Position(params.Position)); err != nil {
		switch {
		case desk.IsInvalidPosition(err):
			jsonrpcx.WithError(r, req.ID, jsonrpcx.InvalidParams, err.Error())
		case desk.IsConfigUnavailable(err):
			jsonrpcx.WithError(r, req.ID, jsonrpcx.InternalError, "Position config is unavailable")
		default:
			h.logger.Error("Move failed", zap.Error(err))
			jsonrpcx.WithError(r, req.ID, jsonrpcx.InternalError, "Failed to move desk")
		}
		return
	}

	jsonrpcx.Success(w, req.ID, MoveResponse{
		Position: params.Position,
		Nagging:  h.controller.Nagging(),
	})
}

// HandlePosition handles POST /api/v1/desk.Position
func (h *DeskHandler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonrpcx.WithError(r, nil, jsonrpcx.MethodNotFound, "Method not allowed")
		return
	}

	req, err := jsonrpcx.ParseRequest(r)
	if err != nil {
		jsonrpcx.WithError(r, nil, jsonrpcx.ParseError, "Invalid JSON-RPC request")
		return
	}

	result := PositionResponse{
		Nagging:  h.controller.Nagging(),
		NagArmed: h.controller.NagActive(),
	}
	if current, ok := h.controller.Current(); ok {
		position := current.String()
		result.Position = &position
	}

	jsonrpcx.Success(w, req.ID, result)
}

// HandlePositions handles POST /api/v1/desk.Positions
func (h *DeskHandler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonrpcx.WithError(r, nil, jsonrpcx.MethodNotFound, "Method not allowed")
		return
	}

	req, err := jsonrpcx.ParseRequest(r)
	if err != nil {
		jsonrpcx.WithError(r, nil, jsonrpcx.ParseError, "Invalid JSON-RPC request")
		return
	}

	// Always a fresh read, the idasen CLI may have rewritten its config
	positions, err := h.source.Positions()
	if err != nil {
		h.logger.Error("Position config lookup failed", zap.Error(err))
		jsonrpcx.WithError(r, req.ID, jsonrpcx.InternalError, "Position config is unavailable")
		return
	}

	jsonrpcx.Success(w, req.ID, PositionsResponse{Positions: positions})
}
