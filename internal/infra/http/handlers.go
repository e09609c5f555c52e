package http

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"incidentproxy/internal/domain"
	"incidentproxy/internal/infra/artifactstore"
	"incidentproxy/internal/usecase"

	"github.com/gin-gonic/gin"
)

const noContentResponse = "NO_CONTENT_GIVEN"

func (s *Server) handlePushInfo(c *gin.Context) {
	provider := c.Param("provider")
	if _, ok := s.cfg.Providers[provider]; !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.String(http.StatusOK, "Waiting for POST push notifications from %s", provider)
}

func (s *Server) handlePush(c *gin.Context) {
	provider := c.Param("provider")
	if _, ok := s.cfg.Providers[provider]; !ok {
		c.Status(http.StatusNotFound)
		return
	}
	if !s.pusherAllowed(c.ClientIP()) {
		c.String(http.StatusBadRequest, "This remote address is not white listed")
		return
	}

	envelope := usecase.SniffEnvelope(c.Request)
	result, err := s.ingestUC.Execute(c.Request.Context(), provider, envelope.Payload, envelope.Ext, nil, true)
	if err != nil {
		if errors.Is(err, domain.ErrNoContent) {
			c.String(http.StatusBadRequest, noContentResponse)
			return
		}
		c.String(http.StatusInternalServerError, "processing failed")
		return
	}
	if result.IsInteresting {
		log.Printf("push %s: %s parsed, %d incidents found", provider, result.FileName, result.AmountIncidents)
	} else {
		log.Printf("push %s: content not interesting, skipped", provider)
	}
	c.String(http.StatusOK, s.cfg.ProviderResponse(provider))
}

// pusherAllowed checks the push source allowlist. An empty list
// disables the check; localhost is always allowed.
func (s *Server) pusherAllowed(remote string) bool {
	if isLocalhost(remote) {
		return true
	}
	if len(s.cfg.AllowedPushers) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedPushers {
		if remote == allowed {
			return true
		}
	}
	return false
}

func isLocalhost(remote string) bool {
	return remote == "127.0.0.1" || remote == "::1" || remote == "localhost"
}

func (s *Server) handleReplay(c *gin.Context) {
	// A wrong or missing token is indistinguishable from a missing
	// route.
	if s.cfg.RemoteControl.Token == "" || c.Query("token") != s.cfg.RemoteControl.Token {
		c.Status(http.StatusNotFound)
		return
	}

	filter := domain.ReplayFilter{
		Providers:   splitParam(c.Query("provider")),
		Received:    splitParam(c.Query("received")),
		NameFilter:  splitParam(c.Query("name_filter")),
		Manufacture: splitParam(c.Query("manufacture")),
		OnlyReport:  c.Query("only_report") == "true" || c.Query("only_report") == "1",
	}
	filter.Targets = append(splitParam(c.Query("target")), splitParam(c.Query("restrict_witness_group"))...)

	if len(filter.Providers) == 0 && len(filter.Received) == 0 && len(filter.NameFilter) == 0 &&
		len(filter.Manufacture) == 0 && len(filter.Targets) == 0 && !filter.OnlyReport {
		c.JSON(http.StatusOK, replayDescription())
		return
	}

	report, err := s.replayUC.Execute(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func replayDescription() gin.H {
	return gin.H{
		"description": "Searches the stored incidents for entries matching the given parameters and replays them to the chosen witnesses",
		"possible_arguments": gin.H{
			"target":      "Witness name, url or group. Replay is only sent to matched witnesses",
			"provider":    "Replay only incidents from this provider, default all providers",
			"received":    "Replay only incidents received in matching date buckets (e.g. 201805). If not given the range is guessed from name_filter, and without a guess the whole store is searched",
			"name_filter": "Replay only incidents whose identifier contains every token of this comma separated list (e.g. '2018-05-31,soccer,create'), mandatory",
			"only_report": "Only generate a report of what would happen, default false",
			"manufacture": "Unique string of an incident to be manufactured and sent as-is",
		},
	}
}

type witnessStatus struct {
	Status string          `json:"status"`
	Config *domain.Witness `json:"config,omitempty"`
}

type providerStatus struct {
	Name             string `json:"name"`
	Status           string `json:"status"`
	LastIncident     string `json:"last_incident,omitempty"`
	Hash             string `json:"hash,omitempty"`
	LastIncidentName string `json:"last_incident_name,omitempty"`
}

func (s *Server) handleIsAlive(c *gin.Context) {
	maskNames := !isLocalhost(c.ClientIP())
	allIsWell := true

	// Witness status: only not-ok entries are listed, a failure flips
	// the overall subscriber flag.
	subscriberFlag := "ok"
	details := make(map[string][]witnessStatus)
	lastStatus := s.delivery.LastStatus()
	order, grouped := s.directory.Groups(nil)
	for _, group := range order {
		for _, witness := range grouped[group] {
			status, ok := lastStatus[witness.URL+s.cfg.Subscriptions.Postfix]
			if !ok {
				status = "unknown"
			}
			if status == "ok" {
				continue
			}
			if status != "unknown" {
				subscriberFlag = "nok"
			}
			entry := witnessStatus{Status: status}
			if !maskNames {
				w := witness
				entry.Config = &w
			}
			details[group] = append(details[group], entry)
		}
	}

	staleAfter := time.Duration(s.cfg.ProvidersSetting.ErrorAfterNoIncidentHours) * time.Hour
	providers := make([]providerStatus, 0, len(s.cfg.Providers))
	for _, name := range s.cfg.ProviderNames() {
		entry := providerStatus{Status: "nok"}
		latest, modTime, err := s.artifacts.LatestFile(artifactstore.Incidents, name)
		if err == nil && s.now().Sub(modTime) < staleAfter {
			entry.Status = "ok"
		} else {
			allIsWell = false
		}
		if err == nil {
			entry.LastIncident = domain.DateToString(modTime)
		}

		masked := s.delivery.MaskedProvider(domain.ProviderInfo{Name: name})
		if maskNames {
			entry.Name = masked.Name
		} else {
			entry.Name = name
			entry.Hash = masked.Name
			entry.LastIncidentName = latest
		}
		providers = append(providers, entry)
	}

	status := "ok"
	if !allIsWell {
		status = "nok"
	}
	lastWritten := ""
	if t := s.artifacts.LastWritten(); !t.IsZero() {
		lastWritten = domain.DateToString(t)
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"subscribers": gin.H{
			"status":  subscriberFlag,
			"details": details,
		},
		"providers":    providers,
		"last_written": lastWritten,
		"versions":     gin.H{"incidentproxy": Version},
	})
}

func (s *Server) handleStatistics(c *gin.Context) {
	ctx := c.Request.Context()
	providers, err := s.summary.Providers(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "incident database unavailable"})
		return
	}
	summary, err := s.summary.Summary(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "incident database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"providers": providers,
		"events":    summary,
	})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "route not found"})
}

func splitParam(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
