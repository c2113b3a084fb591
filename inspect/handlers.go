package inspect

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hupe1980/agentstack/core"
	"github.com/hupe1980/agentstack/logging"
)

type handlers struct {
	st     *core.Storage
	logger logging.Logger
}

type agentSummary struct {
	ID     string `json:"id"`
	Config string `json:"config,omitempty"`
	Steps  int    `json:"steps"`
	Active bool   `json:"active"`
}

type sessionView struct {
	ID        string                    `json:"id"`
	CreatedAt time.Time                 `json:"created_at"`
	Active    bool                      `json:"active"`
	State     map[string]map[string]any `json:"state"`
	Agents    []agentSummary            `json:"agents"`
}

type branchView struct {
	Name     string `json:"name"`
	Parent   string `json:"parent,omitempty"`
	Position int    `json:"position"`
	Length   int    `json:"length"`
	Complete bool   `json:"complete"`
}

type agentView struct {
	ID        string                    `json:"id"`
	SessionID string                    `json:"session_id"`
	CreatedAt time.Time                 `json:"created_at"`
	Config    string                    `json:"config,omitempty"`
	Steps     int                       `json:"steps"`
	Active    bool                      `json:"active"`
	Branches  []branchView              `json:"branches"`
	Artifacts []*core.Artifact          `json:"artifacts"`
	State     map[string]map[string]any `json:"state"`
}

func (h handlers) fail(c *gin.Context, err error) {
	if errors.Is(err, core.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"err": err.Error()})
		return
	}

	h.logger.Error("inspect.error", "path", c.FullPath(), "error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
}

func (h handlers) ListSessions(c *gin.Context) {
	ids, err := h.st.ListSessions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": ids})
}

func (h handlers) GetSession(c *gin.Context) {
	s, err := h.st.LoadSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	view := sessionView{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Active:    s.IsActive(),
		State:     s.State().Snapshot(),
		Agents:    []agentSummary{},
	}

	for _, a := range s.Agents() {
		view.Agents = append(view.Agents, agentSummary{ID: a.ID, Config: a.Config(), Steps: a.Steps(), Active: a.IsActive()})
	}

	c.JSON(http.StatusOK, view)
}

func (h handlers) GetAgent(c *gin.Context) {
	a, err := h.st.LoadAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	st := a.Stack()

	view := agentView{
		ID:        a.ID,
		SessionID: a.SessionID,
		CreatedAt: a.CreatedAt,
		Config:    a.Config(),
		Steps:     a.Steps(),
		Active:    a.IsActive(),
		Branches:  []branchView{},
		Artifacts: st.Artifacts(),
		State:     st.State().Snapshot(),
	}

	for _, b := range st.Branches() {
		bv := branchView{
			Name:     core.BranchLabel(b),
			Length:   len(st.BranchInteractions(b)),
			Complete: st.IsBranchComplete(b),
		}

		if f, ok := st.ForkOf(b); ok {
			bv.Parent = core.BranchLabel(f.Parent)
			bv.Position = f.Position
		}

		view.Branches = append(view.Branches, bv)
	}

	c.JSON(http.StatusOK, view)
}

// BranchInteractions returns the records visible on a branch in log order.
// The path segment "main" selects the main branch.
func (h handlers) BranchInteractions(c *gin.Context) {
	a, err := h.st.LoadAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	branch := c.Param("branch")
	if branch == core.BranchLabel(core.MainBranch) {
		branch = core.MainBranch
	}

	if !a.Stack().HasBranch(branch) {
		c.JSON(http.StatusNotFound, gin.H{"err": core.ErrUnknownBranch.Error() + ": " + branch})
		return
	}

	records := []core.Record{}

	for _, it := range a.Stack().BranchInteractions(branch) {
		rec, err := core.EncodeInteraction(it)
		if err != nil {
			h.fail(c, err)
			return
		}

		records = append(records, rec)
	}

	c.JSON(http.StatusOK, gin.H{"agent_id": a.ID, "branch": core.BranchLabel(branch), "interactions": records})
}

func (h handlers) GetInteraction(c *gin.Context) {
	rec, err := h.st.LoadInteractionRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h handlers) GetArtifact(c *gin.Context) {
	a, err := h.st.LoadArtifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, a)
}

func (h handlers) ArtifactContent(c *gin.Context) {
	a, err := h.st.LoadArtifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	mime := a.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}

	if a.Path == "" {
		c.Data(http.StatusOK, mime, []byte(a.Content))
		return
	}

	data, err := h.st.LoadFile(c.Request.Context(), a.Path)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Data(http.StatusOK, mime, data)
}
