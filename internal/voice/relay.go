package voice

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/connectai-gateway/internal/observability"
)

// State is the relay lifecycle position.
type State int32

// Relay states, in lifecycle order.
const (
	AwaitingUpgrade State = iota
	ClientConnected
	UpstreamConnecting
	UpstreamOpen
	SessionConfiguring
	Relaying
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingUpgrade:
		return "awaiting_upgrade"
	case ClientConnected:
		return "client_connected"
	case UpstreamConnecting:
		return "upstream_connecting"
	case UpstreamOpen:
		return "upstream_open"
	case SessionConfiguring:
		return "session_configuring"
	case Relaying:
		return "relaying"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Close reasons sent to the client.
const (
	ReasonConfig         = "Server configuration error"
	ReasonUpstreamError  = "OpenAI connection error"
	ReasonUpstreamClosed = "OpenAI connection closed"
)

const (
	dirClientToUpstream = "client_to_upstream"
	dirUpstreamToClient = "upstream_to_client"
)

// Config holds the provider connection settings.
type Config struct {
	APIKey string
	// URL is the realtime endpoint without the model query.
	URL   string
	Model string
	// IdleTimeout closes a session when a socket stays silent this long.
	IdleTimeout time.Duration
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// NewUpgrader returns the upgrader for client connections. Origin checks are
// left to CORS; authentication happens before the upgrade.
func NewUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   16 << 10,
		WriteBufferSize:  16 << 10,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
}

// Relay couples one client socket to one provider socket.
type Relay struct {
	cfg    Config
	voice  string
	client *websocket.Conn
	up     *websocket.Conn

	state      atomic.Int32
	clientMu   sync.Mutex
	upstreamMu sync.Mutex
	// configured is only touched by the upstream pump.
	configured bool
	closeOnce  sync.Once

	log zerolog.Logger
}

// NewRelay wraps an upgraded client connection.
func NewRelay(cfg Config, client *websocket.Conn, userID, voice string) *Relay {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	voice = NormalizeVoice(voice)
	r := &Relay{
		cfg:    cfg,
		voice:  voice,
		client: client,
		log:    log.With().Str("user_id", userID).Str("voice", voice).Logger(),
	}
	r.setState(ClientConnected)
	return r
}

// State reports the current lifecycle state.
func (r *Relay) State() State { return State(r.state.Load()) }

func (r *Relay) setState(s State) {
	r.state.Store(int32(s))
	r.log.Debug().Str("state", s.String()).Msg("voice relay state")
}

// Run connects to the provider and relays until either side closes. It
// always leaves both sockets closed.
func (r *Relay) Run(ctx context.Context) {
	observability.VoiceSessions.Inc()
	defer observability.VoiceSessions.Dec()
	started := time.Now()

	if r.cfg.APIKey == "" {
		r.log.Error().Msg("realtime API key not configured")
		r.shutdown(websocket.CloseInternalServerErr, ReasonConfig)
		return
	}

	r.setState(UpstreamConnecting)
	up, err := r.dial(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("realtime provider dial failed")
		r.shutdown(websocket.CloseInternalServerErr, ReasonUpstreamError)
		return
	}
	r.up = up
	r.setState(UpstreamOpen)
	r.log.Info().Msg("voice relay connected")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.pumpUpstream()
	}()
	go func() {
		defer wg.Done()
		r.pumpClient()
	}()
	wg.Wait()

	r.log.Info().Dur("duration", time.Since(started)).Msg("voice relay closed")
}

func (r *Relay) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(r.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model", r.cfg.Model)
	u.RawQuery = q.Encode()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+r.cfg.APIKey)
	h.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := r.cfg.Dialer.DialContext(ctx, u.String(), h)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// pumpUpstream forwards provider frames to the client. The first
// session.created triggers the session.update before it is forwarded.
func (r *Relay) pumpUpstream() {
	for {
		r.touch(r.up)
		mt, data, err := r.up.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				r.log.Info().Int("code", ce.Code).Str("reason", ce.Text).Msg("realtime provider closed")
				r.shutdown(websocket.CloseNormalClosure, ReasonUpstreamClosed)
			} else {
				r.log.Warn().Err(err).Msg("realtime provider read failed")
				r.shutdown(websocket.CloseInternalServerErr, ReasonUpstreamError)
			}
			return
		}

		typ := ""
		if mt == websocket.TextMessage {
			typ = eventType(data)
		}
		if typ == "session.created" && !r.configured {
			r.setState(SessionConfiguring)
			frame, err := SessionUpdateFrame(r.voice)
			if err == nil {
				err = r.write(r.up, &r.upstreamMu, websocket.TextMessage, frame)
			}
			if err != nil {
				r.log.Warn().Err(err).Msg("session.update failed")
				r.shutdown(websocket.CloseInternalServerErr, ReasonUpstreamError)
				return
			}
			r.configured = true
			r.setState(Relaying)
		}

		r.log.Debug().Str("type", typ).Str("dir", dirUpstreamToClient).Msg("voice frame")
		if err := r.write(r.client, &r.clientMu, mt, data); err != nil {
			r.log.Info().Err(err).Msg("client write failed")
			r.shutdown(websocket.CloseNormalClosure, "")
			return
		}
		observability.VoiceFrames.WithLabelValues(dirUpstreamToClient).Inc()
	}
}

// pumpClient forwards client frames to the provider. Client errors are
// logged only; the provider socket is closed in response.
func (r *Relay) pumpClient() {
	for {
		r.touch(r.client)
		mt, data, err := r.client.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.log.Warn().Err(err).Msg("client socket error")
			} else {
				r.log.Info().Err(err).Msg("client socket closed")
			}
			r.shutdown(websocket.CloseNormalClosure, "")
			return
		}

		if mt == websocket.TextMessage {
			r.log.Debug().Str("type", eventType(data)).Str("dir", dirClientToUpstream).Msg("voice frame")
		}
		if err := r.write(r.up, &r.upstreamMu, mt, data); err != nil {
			r.log.Warn().Err(err).Msg("realtime provider write failed")
			r.shutdown(websocket.CloseInternalServerErr, ReasonUpstreamError)
			return
		}
		observability.VoiceFrames.WithLabelValues(dirClientToUpstream).Inc()
	}
}

func (r *Relay) touch(c *websocket.Conn) {
	if r.cfg.IdleTimeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(r.cfg.IdleTimeout))
	}
}

func (r *Relay) write(c *websocket.Conn, mu *sync.Mutex, mt int, data []byte) error {
	mu.Lock()
	defer mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	return c.WriteMessage(mt, data)
}

// shutdown closes both sockets once. The first caller picks the close frame
// the client receives; the provider always gets a normal closure.
func (r *Relay) shutdown(clientCode int, reason string) {
	r.closeOnce.Do(func() {
		deadline := time.Now().Add(r.cfg.WriteTimeout)
		if r.up != nil {
			_ = r.up.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = r.up.Close()
		}
		_ = r.client.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(clientCode, reason), deadline)
		_ = r.client.Close()
		r.setState(Closed)
	})
}
