package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shellsense/internal/protocol"
	"shellsense/internal/provider"
	"shellsense/internal/store"
	"shellsense/internal/suggest"
)

// dispatch routes one request to its handler.
func (s *Server) dispatch(ctx context.Context, logger *slog.Logger, req *protocol.Request) *protocol.Response {
	switch req.Type {
	case protocol.TypePing:
		return s.handlePing()
	case protocol.TypeLogCommand:
		return s.handleLogCommand(ctx, logger, req.Data)
	case protocol.TypeSuggest:
		return s.handleSuggest(ctx, logger, req.Data)
	case protocol.TypeGetHistory:
		return s.handleGetHistory(ctx, req.Data)
	case protocol.TypeGetAnalytics:
		return s.handleGetAnalytics(ctx)
	case protocol.TypeGetConfig:
		return s.handleGetConfig(req.Data)
	case protocol.TypeSetConfig:
		return s.handleSetConfig(logger, req.Data)
	case protocol.TypeExplainCommand:
		return s.handleExplainCommand(ctx, req.Data)
	case protocol.TypePrune:
		return s.handlePrune(ctx, req.Data)
	default:
		return protocol.Error(fmt.Sprintf("unknown request type %q", req.Type))
	}
}

func (s *Server) handlePing() *protocol.Response {
	resp := protocol.OK()
	resp.Message = "pong"
	return resp
}

// handleLogCommand records an executed command. Commands run inside an
// excluded directory are acknowledged but never stored, so the exclusion
// list cannot be probed over the socket.
func (s *Server) handleLogCommand(ctx context.Context, logger *slog.Logger, data json.RawMessage) *protocol.Response {
	var d protocol.LogCommandData
	if err := json.Unmarshal(data, &d); err != nil {
		return protocol.Error("invalid log_command payload: " + err.Error())
	}
	if strings.TrimSpace(d.Command) == "" {
		return protocol.Error("command is required")
	}

	policy := NewPrivacyPolicy(s.cfg.ExcludedDirs())
	if policy.IsExcluded(d.CWD) {
		logger.Debug("command excluded by privacy policy")
		return protocol.OK()
	}

	id, err := s.store.Log(ctx, d.Command, d.CWD, d.ExitCode, d.Duration)
	if err != nil {
		logger.Error("log command failed", "error", err)
		return protocol.Error("failed to record command")
	}
	s.incrementCommandsLogged()

	if s.indexer != nil {
		s.indexer.Enqueue(id, d.Command)
	}

	resp := protocol.OK()
	resp.ID = &id
	return resp
}

func (s *Server) handleSuggest(ctx context.Context, logger *slog.Logger, data json.RawMessage) *protocol.Response {
	var d protocol.SuggestData
	if err := json.Unmarshal(data, &d); err != nil {
		return protocol.Error("invalid suggest payload: " + err.Error())
	}

	snap := s.cfg.Snapshot()
	opts := suggest.Options{
		CWD:            d.CWD,
		MaxSuggestions: snap.MaxSuggestions,
		MinConfidence:  snap.MinConfidence,
		FuzzyThreshold: snap.FuzzyThreshold,
		FuzzyPoolSize:  snap.FuzzyPoolSize,
		SemanticK:      snap.SemanticK,
	}

	candidates, err := s.cascade.Suggest(ctx, d.Partial, opts)
	if err != nil {
		logger.Error("suggest failed", "error", err)
		return protocol.Error("suggestion retrieval failed")
	}
	if candidates == nil {
		candidates = []suggest.Candidate{}
	}

	resp := protocol.OK()
	resp.Suggestions = candidates
	return resp
}

func (s *Server) handleGetHistory(ctx context.Context, data json.RawMessage) *protocol.Response {
	var d protocol.GetHistoryData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &d); err != nil {
			return protocol.Error("invalid get_history payload: " + err.Error())
		}
	}
	if d.Limit <= 0 {
		d.Limit = 20
	}

	var (
		records []store.CommandRecord
		err     error
	)
	if strings.TrimSpace(d.Search) != "" {
		records, err = s.store.SearchText(ctx, d.Search, d.Limit)
	} else {
		records, err = s.store.Recent(ctx, d.Limit, "")
	}
	if err != nil {
		return protocol.Error("history lookup failed")
	}

	resp := protocol.OK()
	resp.History = records
	return resp
}

func (s *Server) handleGetAnalytics(ctx context.Context) *protocol.Response {
	analytics, err := s.store.Analytics(ctx)
	if err != nil {
		return protocol.Error("analytics lookup failed")
	}
	resp := protocol.OK()
	resp.Analytics = analytics
	return resp
}

func (s *Server) handleGetConfig(data json.RawMessage) *protocol.Response {
	var d protocol.ConfigData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &d); err != nil {
			return protocol.Error("invalid get_config payload: " + err.Error())
		}
	}
	if d.Key == "" {
		return protocol.Error("key is required")
	}

	value, err := s.cfg.Get(d.Key)
	if err != nil {
		return protocol.Error(err.Error())
	}

	resp := protocol.OK()
	resp.Key = d.Key
	resp.Value = value
	return resp
}

// handleSetConfig applies the change live and persists it so it survives
// restarts.
func (s *Server) handleSetConfig(logger *slog.Logger, data json.RawMessage) *protocol.Response {
	var d protocol.ConfigData
	if err := json.Unmarshal(data, &d); err != nil {
		return protocol.Error("invalid set_config payload: " + err.Error())
	}
	if d.Key == "" {
		return protocol.Error("key is required")
	}

	prev, prevErr := s.cfg.Get(d.Key)

	if err := s.cfg.Set(d.Key, d.Value); err != nil {
		return protocol.Error(err.Error())
	}
	if err := s.cfg.Validate(); err != nil {
		if prevErr == nil {
			_ = s.cfg.Set(d.Key, fmt.Sprint(prev))
		}
		return protocol.Error(err.Error())
	}

	if err := s.cfg.Save(s.paths.ConfigFile()); err != nil {
		logger.Error("persist config failed", "error", err)
		return protocol.Error("config updated in memory but not persisted")
	}

	resp := protocol.OK()
	resp.Key = d.Key
	resp.Value = d.Value
	return resp
}

func (s *Server) handleExplainCommand(ctx context.Context, data json.RawMessage) *protocol.Response {
	var d protocol.ExplainData
	if err := json.Unmarshal(data, &d); err != nil {
		return protocol.Error("invalid explain_command payload: " + err.Error())
	}
	if strings.TrimSpace(d.Command) == "" {
		return protocol.Error("command is required")
	}

	explanation, err := s.registry.Explain(ctx, d.Command)
	if err != nil {
		if errors.Is(err, provider.ErrNoExplainer) {
			return protocol.Error("no explainer configured")
		}
		return protocol.Error("explanation failed: " + err.Error())
	}

	resp := protocol.OK()
	resp.Explanation = explanation
	return resp
}

// handlePrune removes history older than the requested instant, falling
// back to the configured retention window.
func (s *Server) handlePrune(ctx context.Context, data json.RawMessage) *protocol.Response {
	var d protocol.PruneData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &d); err != nil {
			return protocol.Error("invalid prune payload: " + err.Error())
		}
	}

	var before time.Time
	switch {
	case d.BeforeUnixMs > 0:
		before = time.UnixMilli(d.BeforeUnixMs)
	case s.cfg.RetentionDays() > 0:
		before = time.Now().AddDate(0, 0, -s.cfg.RetentionDays())
	default:
		zero := int64(0)
		resp := protocol.OK()
		resp.Pruned = &zero
		return resp
	}

	pruned, err := s.store.Prune(ctx, before)
	if err != nil {
		return protocol.Error("prune failed")
	}

	resp := protocol.OK()
	resp.Pruned = &pruned
	return resp
}
