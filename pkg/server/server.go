package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/actuator"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/pwm"
	"github.com/tigerbot-team/tigerbot/quad-controller/pkg/servo"
)

const Welcome = "Welcome to the quadcopter controller!"

const (
	ErrorCodeRequest  = 2000
	ErrorCodeNotFound = 404
	ErrorCodeDriver   = 500
)

var ErrorMessages = map[int]string{
	ErrorCodeRequest:  "Servo request parsing error.",
	ErrorCodeNotFound: "No such servo motor.",
	ErrorCodeDriver:   "Servo driver error.",
}

const DefaultTurnAngle = 10.0

// Response is the envelope every endpoint answers with.
type Response struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  int         `json:"error_code,omitempty"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// ChannelID accepts a channel as either a JSON string or a number.
type ChannelID string

func (c *ChannelID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = ChannelID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Errorf("channel must be a string or a number, not %s", b)
	}
	*c = ChannelID(n.String())
	return nil
}

// ServoRequest is the body shared by the /servo endpoints.
type ServoRequest struct {
	Channel ChannelID `json:"channel"`
	Angle   *float64  `json:"angle"`
	PWM     int       `json:"pwm"`
}

type MotorInfo struct {
	Name    string  `json:"motor_name"`
	Channel string  `json:"channel,omitempty"`
	Angle   float64 `json:"angle"`
	PWM     uint32  `json:"pwm,omitempty"`
}

type motor struct {
	channel string
	m       *servo.Motor
}

// Server exposes named servos over HTTP.  All actuator calls are made under
// one lock.
type Server struct {
	driver pwm.Driver
	bounds actuator.Bounds
	home   float64
	log    golog.Logger
	hub    *WSHub
	router chi.Router

	lock   sync.Mutex
	motors map[string]*motor
}

func New(driver pwm.Driver, bounds actuator.Bounds, home float64, log golog.Logger) (*Server, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		driver: driver,
		bounds: bounds,
		home:   home,
		log:    log,
		hub:    NewWSHub(),
		motors: map[string]*motor{},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleWelcome)
	r.Route("/servo", func(r chi.Router) {
		r.Post("/list", s.handleList)
		r.Post("/{name}/create", s.handleCreate)
		r.Post("/{name}/turn", s.handleTurn)
		r.Post("/{name}/release", s.handleRelease)
	})
	r.Get("/ws/events", s.handleEvents)
	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hub is where write events are broadcast.
func (s *Server) Hub() *WSHub {
	return s.hub
}

// Publish sends a write to every event client.
func (s *Server) Publish(w pwm.Write) {
	s.hub.Broadcast(WSMessage{Type: "pwm", Data: w})
}

// ListenAndServe serves on addr until ctx is done, then shuts down and stops
// every servo.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errC := make(chan error, 1)
	go func() {
		s.log.Infow("serving", "addr", addr)
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return multierr.Append(errors.Wrap(err, "server failed"), s.Close())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.hub.Close()
	return multierr.Append(err, s.Close())
}

// Close stops and forgets every servo.
func (s *Server) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	var err error
	for name, mot := range s.motors {
		err = multierr.Append(err, mot.m.Stop())
		delete(s.motors, name)
	}
	return err
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, Response{StatusCode: status, Data: data})
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status, code int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, Response{
		StatusCode: status,
		ErrorCode:  code,
		Message:    ErrorMessages[code],
		Data:       data,
	})
}

// parse reads the request from the query string then the JSON body, the body
// winning.
func parse(r *http.Request) (ServoRequest, error) {
	var req ServoRequest
	q := r.URL.Query()
	if c := q.Get("channel"); c != "" {
		req.Channel = ChannelID(c)
	}
	if a := q.Get("angle"); a != "" {
		angle, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return req, errors.Errorf("angle: not a number: %q", a)
		}
		req.Angle = &angle
	}
	if p := q.Get("pwm"); p != "" {
		pulse, err := strconv.Atoi(p)
		if err != nil {
			return req, errors.Errorf("pwm: not an integer: %q", p)
		}
		req.PWM = pulse
	}

	if r.Body != nil {
		if err := render.DecodeJSON(r.Body, &req); err != nil && err != io.EOF {
			return req, errors.Wrap(err, "invalid JSON body")
		}
	}
	if req.PWM < 0 {
		return req, errors.Errorf("pwm: must not be negative, got %d", req.PWM)
	}
	if req.Angle == nil {
		angle := DefaultTurnAngle
		req.Angle = &angle
	}
	return req, nil
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, Welcome)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	req, err := parse(r)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, ErrorCodeRequest, err.Error())
		return
	}
	if req.Channel == "" {
		s.respondError(w, r, http.StatusBadRequest, ErrorCodeRequest, "channel: missing")
		return
	}
	channel := string(req.Channel)

	s.lock.Lock()
	defer s.lock.Unlock()
	if old, ok := s.motors[name]; ok {
		if err := old.m.Stop(); err != nil {
			s.log.Warnw("failed to stop replaced servo", "name", name, "error", err)
		}
		delete(s.motors, name)
	}

	ch, err := s.driver.Channel(channel)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, ErrorCodeRequest, err.Error())
		return
	}
	ch = pwm.Observe(channel, ch, s.Publish)
	m, err := servo.New(ch, s.bounds, s.home, servo.WithLogger(s.log.Named(name)))
	if err != nil {
		_ = ch.Stop()
		s.respondError(w, r, http.StatusInternalServerError, ErrorCodeDriver, err.Error())
		return
	}
	s.motors[name] = &motor{channel: channel, m: m}
	s.log.Infow("created servo", "name", name, "channel", channel)

	s.respond(w, r, http.StatusOK, MotorInfo{Name: name, Channel: channel, Angle: m.Angle()})
}

func (s *Server) list() []MotorInfo {
	s.lock.Lock()
	defer s.lock.Unlock()
	infos := make([]MotorInfo, 0, len(s.motors))
	for name, mot := range s.motors {
		infos = append(infos, MotorInfo{Name: name, Channel: mot.channel, Angle: mot.m.Angle()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, s.list())
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	req, err := parse(r)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, ErrorCodeRequest, err.Error())
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	mot, ok := s.motors[name]
	if !ok {
		s.respondError(w, r, http.StatusNotFound, ErrorCodeNotFound, name)
		return
	}

	var (
		angle float64
		pulse uint32
	)
	if req.PWM != 0 {
		angle, pulse, err = mot.m.SetPulse(float64(req.PWM), false)
	} else {
		angle, pulse, err = mot.m.MoveBy(*req.Angle)
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, ErrorCodeDriver, err.Error())
		return
	}
	s.respond(w, r, http.StatusOK, MotorInfo{Name: name, Angle: angle, PWM: pulse})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.lock.Lock()
	defer s.lock.Unlock()
	mot, ok := s.motors[name]
	if !ok {
		s.respondError(w, r, http.StatusNotFound, ErrorCodeNotFound, name)
		return
	}
	delete(s.motors, name)
	if err := mot.m.Stop(); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, ErrorCodeDriver, err.Error())
		return
	}
	s.respond(w, r, http.StatusOK, MotorInfo{Name: name, Channel: mot.channel, Angle: mot.m.Angle()})
}
