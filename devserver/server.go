// Package devserver is a local stand-in for the agent backend: it serves the
// session API and streams scripted turns in the production wire format, so
// the client can be exercised without a live deployment. With a LiveAgent
// attached it proxies prompts to a real model instead of the script.
package devserver

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Server wraps a gin engine exposing the backend contract.
type Server struct {
	Engine *gin.Engine
	Logger *log.Logger

	// Script is the sequence of frame payloads streamed per turn when no
	// LiveAgent is set. Each entry is marshaled and framed as one event.
	Script []map[string]interface{}
	// FrameDelay spaces script frames out to mimic a real producer.
	FrameDelay time.Duration
	// Live, when set, replaces the script with real model output.
	Live *LiveAgent
}

func New() *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		Engine:     gin.New(),
		Logger:     log.New(os.Stdout, "[devserver] ", log.LstdFlags),
		Script:     DefaultScript(),
		FrameDelay: 5 * time.Millisecond,
	}

	s.Engine.POST("/v1/sessions", s.createSession)
	s.Engine.POST("/v1/sessions/resume", s.resumeSession)
	s.Engine.POST("/v1/agent/chat", s.chat)
	return s
}

// Run starts serving on addr, blocking like gin's Run.
func (s *Server) Run(addr string) error {
	return s.Engine.Run(addr)
}

func (s *Server) createSession(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress"`
		ChainID       string `json:"chainId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := uuid.New().String()
	s.Logger.Printf("created session %s for %s on chain %s", id, req.WalletAddress, req.ChainID)
	c.JSON(http.StatusOK, gin.H{"sessionId": id})
}

func (s *Server) resumeSession(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": uuid.New().String(),
		"turns":     []gin.H{},
	})
}

func (s *Server) chat(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId"`
		Prompt    string `json:"promptText"`
		ChainID   string `json:"chainId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	if s.Live != nil {
		if err := s.Live.Stream(c.Request.Context(), req.Prompt, frameWriter(c.Writer, flusher)); err != nil {
			s.Logger.Printf("live stream error: %v", err)
		}
		return
	}

	write := frameWriter(c.Writer, flusher)
	for _, payload := range s.Script {
		select {
		case <-c.Request.Context().Done():
			return
		default:
		}
		if err := write(payload); err != nil {
			s.Logger.Printf("client went away: %v", err)
			return
		}
		if s.FrameDelay > 0 {
			time.Sleep(s.FrameDelay)
		}
	}
}

// frameWriter returns a function writing one payload as a wire frame and
// flushing it out immediately.
func frameWriter(w http.ResponseWriter, flusher http.Flusher) func(payload interface{}) error {
	return func(payload interface{}) error {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
}

// DefaultScript is a representative turn: reasoning, a tool round-trip with
// citations, a streamed answer, and a transaction notice.
func DefaultScript() []map[string]interface{} {
	return []map[string]interface{}{
		{"type": "thinking"},
		{"type": "thinking_delta", "text": "Checking current balances before answering. "},
		{"type": "tool_call", "tool": "balance_lookup"},
		{"type": "tool_progress", "tool": "balance_lookup", "status": "querying RPC node"},
		{"type": "tool_result", "tool": "balance_lookup", "output": map[string]interface{}{
			"citations": []string{"https://etherscan.io/address/0x0"},
		}},
		{"type": "heartbeat"},
		{"type": "ask_start"},
		{"type": "ask_delta", "text": "Your wallet holds "},
		{"type": "ask_delta", "text": "1.52 ETH."},
		{"type": "tx_message", "txHash": "0x3b444d7d0dfd2b4f8f6b8a1cbb9f6e2c1d0a5e4f3b2a190807060504030201ff"},
		{"type": "ask", "message": "", "requiresConfirmation": false},
		{"type": "done"},
	}
}
