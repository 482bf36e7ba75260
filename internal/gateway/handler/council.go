package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"council/internal/council"
	"council/internal/gateway/repository/report"
)

// SessionHeader carries the id of the session a stream belongs to.
const SessionHeader = "X-Council-Session"

const archiveTimeout = 10 * time.Second

type councilRequest struct {
	Prompt string `json:"prompt"`
	APIKey string `json:"apiKey"`
}

func (r councilRequest) missing() bool {
	return strings.TrimSpace(r.Prompt) == "" || strings.TrimSpace(r.APIKey) == ""
}

// CouncilHandler serves council sessions over SSE and WebSocket, and the
// registry and archive lookups around them.
type CouncilHandler struct {
	ctrl    *council.Controller
	reports report.Store
	sinks   []council.Sink
	logger  *log.Logger
	now     func() time.Time

	archiving sync.WaitGroup
}

// NewCouncilHandler wires a controller to HTTP. reports may be nil, in which
// case finished sessions are not archived.
func NewCouncilHandler(ctrl *council.Controller, reports report.Store, logger *log.Logger, sinks ...council.Sink) *CouncilHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &CouncilHandler{
		ctrl:    ctrl,
		reports: reports,
		sinks:   sinks,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *CouncilHandler) HandleCouncil(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var in councilRequest
	if !decodeBody(w, r, maxCouncilBody, &in) {
		return
	}
	if in.missing() {
		writeError(w, http.StatusBadRequest, council.MissingInputMessage)
		return
	}

	id := h.ctrl.NewSessionID()
	w.Header().Set(SessionHeader, id)
	stream := NewSSEWriter(w)
	if err := stream.Start(); err != nil {
		h.logger.Printf("council: session %s: start stream: %v", id, err)
		return
	}
	h.run(r.Context(), council.Input{SessionID: id, Prompt: in.Prompt, APIKey: in.APIKey}, stream)
}

// run executes one session against em and archives the result.
func (h *CouncilHandler) run(ctx context.Context, in council.Input, em council.Emitter) {
	res, err := h.ctrl.Run(ctx, in, council.Tee(em, in.SessionID, h.logger, h.sinks...))
	if err != nil {
		if errors.Is(err, council.ErrClientGone) {
			return
		}
		h.logger.Printf("council: session %s failed: %v", in.SessionID, err)
		return
	}
	h.archive(res)
}

func (h *CouncilHandler) archive(res *council.Result) {
	if h.reports == nil || res == nil {
		return
	}
	rep := report.FromResult(res, h.now())
	h.archiving.Add(1)
	go func() {
		defer h.archiving.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := h.reports.Put(ctx, rep); err != nil {
			h.logger.Printf("council: archive session %s: %v", rep.ID, err)
		}
	}()
}

// WaitArchived blocks until pending archive writes finish.
func (h *CouncilHandler) WaitArchived() { h.archiving.Wait() }

func (h *CouncilHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"members": h.ctrl.Registry().ListMembersByPriority(),
	})
}

type reportResponse struct {
	report.Report
	Appendix []council.Section `json:"appendix"`
}

// HandleReport serves GET /api/reports/{id}.
func (h *CouncilHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if h.reports == nil {
		writeError(w, http.StatusNotFound, "Report not found")
		return
	}
	rep, err := h.reports.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Report not found")
			return
		}
		h.logger.Printf("council: load report %q: %v", r.PathValue("id"), err)
		writeError(w, http.StatusInternalServerError, "An error occurred on the server.")
		return
	}
	sections := council.ExtractAppendix(rep.Report)
	if sections == nil {
		sections = []council.Section{}
	}
	writeJSON(w, http.StatusOK, reportResponse{Report: rep, Appendix: sections})
}
