package emulator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tunedrop/internal/logging"
	"tunedrop/internal/metadata"
	"tunedrop/internal/metrics"
	"tunedrop/internal/pairing"
	"tunedrop/internal/transfer"
)

// Options configures a Peer.
type Options struct {
	ListenAddr string
	// AdvertiseHost replaces the listener host in url_lan.
	AdvertiseHost  string
	DeviceID       string
	DeviceName     string
	AppName        string
	AppVersion     int
	Extensions     []string
	MimeTypes      []string
	MaxUploadBytes int64
	TokenTTL       time.Duration
	// RequestSave makes the peer share a push token when pairing.
	RequestSave bool
	// StoreDir receives uploaded files when set.
	StoreDir string
	Logger   *slog.Logger
}

// Upload is one file the peer accepted.
type Upload struct {
	Filename    string
	ContentType string
	Metadata    metadata.Metadata
	Size        int64
	StoredPath  string
	SHA256      string
	ReceivedAt  time.Time
}

// Peer is an in-process stand-in for the companion app.
type Peer struct {
	opts     Options
	secret   []byte
	push     pairing.PushToken
	logger   *slog.Logger
	recorder *metrics.Recorder
	engine   *gin.Engine
	server   *http.Server
	listener net.Listener
	baseURL  string

	mu           sync.Mutex
	tokens       map[string]struct{}
	uploads      []Upload
	attempts     map[string]int
	dropNext     map[string]int
	rejectResume bool
	resumes      int
	resumeTries  int
	pairings     int
	lastWelcome  *pairing.Welcome
	conns        map[*websocket.Conn]struct{}
}

var peerUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// New builds a Peer with defaults for unset options. Call Start to serve.
func New(opts Options) (*Peer, error) {
	if opts.ListenAddr == "" {
		opts.ListenAddr = "127.0.0.1:0"
	}
	if opts.DeviceID == "" {
		opts.DeviceID = uuid.NewString()
	}
	if opts.DeviceName == "" {
		opts.DeviceName = "tunedrop emulator"
	}
	if opts.AppName == "" {
		opts.AppName = "Emulated Player"
	}
	if opts.AppVersion == 0 {
		opts.AppVersion = 1
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{"mp3", "m4a", "flac", "ogg", "opus", "wav", "aac"}
	}
	if len(opts.MimeTypes) == 0 {
		opts.MimeTypes = []string{"audio/mpeg", "audio/mp4", "audio/x-flac", "audio/ogg", "audio/opus", "audio/wav", "audio/aac"}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 2 << 30
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	p := &Peer{
		opts:     opts,
		secret:   secret,
		push:     pairing.PushToken{User: uuid.NewString(), Device: uuid.NewString()},
		logger:   logging.NewComponentLogger(opts.Logger, "emulator"),
		recorder: metrics.NewRecorder(),
		tokens:   map[string]struct{}{},
		attempts: map[string]int{},
		dropNext: map[string]int{},
		conns:    map[*websocket.Conn]struct{}{},
	}
	p.engine = p.routes()
	return p, nil
}

func (p *Peer) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), p.requestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/info", p.handleInfo)
	r.POST("/upload", p.requireToken(), p.handleUpload)
	r.GET("/resume", p.handleResume)
	r.GET("/metrics", gin.WrapH(p.recorder.Handler()))
	return r
}

func (p *Peer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		p.logger.Debug("request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	}
}

// Start binds the listener and serves in the background.
func (p *Peer) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", p.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", p.opts.ListenAddr, err)
	}
	p.listener = listener

	host, port, _ := net.SplitHostPort(listener.Addr().String())
	if p.opts.AdvertiseHost != "" {
		host = p.opts.AdvertiseHost
	}
	p.baseURL = "http://" + net.JoinHostPort(host, port)

	p.server = &http.Server{Handler: p.engine, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Warn("emulator server stopped", logging.Error(err))
		}
	}()
	p.logger.Info("emulator listening", logging.String("url", p.baseURL))
	return nil
}

// URL returns the peer's LAN base URL.
func (p *Peer) URL() string { return p.baseURL }

// DeviceID returns the emulated device identifier.
func (p *Peer) DeviceID() string { return p.opts.DeviceID }

// Metrics returns the peer's receive-side recorder.
func (p *Peer) Metrics() *metrics.Recorder { return p.recorder }

// Close stops the server and drops every websocket session.
func (p *Peer) Close() error {
	p.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(p.conns))
	for conn := range p.conns {
		conns = append(conns, conn)
	}
	p.conns = map[*websocket.Conn]struct{}{}
	p.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}

func (p *Peer) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, transfer.DeviceInfo{
		DeviceName:          p.opts.DeviceName,
		KnownFileExtensions: p.opts.Extensions,
		SupportedMimeTypes:  p.opts.MimeTypes,
		AppName:             p.opts.AppName,
		AppVersion:          p.opts.AppVersion,
	})
}

// DropNextUpload makes the next n uploads of filename lose their connection
// after the body is read.
func (p *Peer) DropNextUpload(filename string, n int) {
	p.mu.Lock()
	p.dropNext[filename] += n
	p.mu.Unlock()
}

// RejectResume makes subsequent resume requests fail.
func (p *Peer) RejectResume(reject bool) {
	p.mu.Lock()
	p.rejectResume = reject
	p.mu.Unlock()
}

// Uploads returns the accepted uploads in arrival order.
func (p *Peer) Uploads() []Upload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Upload(nil), p.uploads...)
}

// Attempts reports how many upload requests named filename.
func (p *Peer) Attempts(filename string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[filename]
}

// ResumeCount reports accepted resume requests.
func (p *Peer) ResumeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resumes
}

// ResumeAttempts reports every resume request, accepted or refused.
func (p *Peer) ResumeAttempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resumeTries
}

// PairCount reports completed pairings.
func (p *Peer) PairCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pairings
}

// LastWelcome returns the most recent welcome received while pairing.
func (p *Peer) LastWelcome() *pairing.Welcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastWelcome
}

func (p *Peer) track(conn *websocket.Conn) {
	p.mu.Lock()
	p.conns[conn] = struct{}{}
	p.mu.Unlock()
}

func (p *Peer) untrack(conn *websocket.Conn) {
	p.mu.Lock()
	delete(p.conns, conn)
	p.mu.Unlock()
}

// hold keeps a session socket open, answering pings, until the sender closes it.
func (p *Peer) hold(conn *websocket.Conn) {
	p.track(conn)
	defer func() {
		p.untrack(conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.Debug("session socket closed", logging.Error(err))
			}
			return
		}
	}
}
