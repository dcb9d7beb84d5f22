package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"drone-relay/config"
	derrors "drone-relay/errors"
	dlog "drone-relay/log"
	"drone-relay/metrics"
	"drone-relay/orchestrator"
	"drone-relay/status"
	"drone-relay/video"
)

const (
	relayPrefix    = "/v1/api/relay"
	frontendPrefix = "/v1/api/frontend"
)

// Server 是控制面 HTTP 服务：中继与飞手前端的所有调用都经由这里进入编排器。
type Server struct {
	cfg     config.Config
	orch    *orchestrator.Orchestrator
	metrics *metrics.Metrics
	logger  *logrus.Entry

	started time.Time
	sampler *sysSampler
	video   *video.Sampler

	mu        sync.RWMutex
	gwStatus  status.GatewayStatus
	lastVideo []video.Metrics
	sampledAt time.Time
	cpu       float64
}

// NewServer 创建控制面服务。
// 参数：
// - cfg: 全局配置（监听端口、超时与指标路径）
// - orch: 编排器
// - m: 指标集合（可为 nil，此时不暴露指标路径）
func NewServer(cfg config.Config, orch *orchestrator.Orchestrator, m *metrics.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		orch:     orch,
		metrics:  m,
		logger:   dlog.Component("control"),
		started:  time.Now(),
		sampler:  newSysSampler(),
		video:    video.NewSampler(),
		gwStatus: status.GatewayStarting,
	}
}

// Handler 返回注册了全部路由的 HTTP 处理器。
// 路由全部挂在根路由上，方法不匹配时返回 405；未匹配的请求同样分配请求 ID 并记录日志。
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, req, derrors.New(http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", req.Method)))
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.writeError(w, req, derrors.New(derrors.CodeNotFound, fmt.Sprintf("no route for %s", req.URL.Path)))
	})

	post := func(path string, h http.HandlerFunc) {
		r.HandleFunc(path, h).Methods(http.MethodPost)
	}
	post(relayPrefix+"/handshake", s.handleHandshake)
	post(relayPrefix+"/heartbeat", s.handleHeartbeat)
	post(relayPrefix+"/disconnect", s.handleDisconnect)
	post(relayPrefix+"/new_drone", s.handleNewDrone)
	post(relayPrefix+"/drones", s.handleListDrones)
	post(relayPrefix+"/drone/disconnected", s.handleDroneDisconnected)
	post(relayPrefix+"/drone/should_takeoff", s.droneAction(s.orch.ShouldTakeoff, "takeoff"))
	post(relayPrefix+"/drone/successful_takeoff", s.droneAction(s.orch.ConfirmTakeoff, "takeoff confirmed"))
	post(relayPrefix+"/drone/should_land", s.droneAction(s.orch.ShouldLand, "land"))
	post(relayPrefix+"/drone/successful_land", s.droneAction(s.orch.ConfirmLanding, "landing confirmed"))
	post(relayPrefix+"/drone/cmd", s.handleGetCommand)
	post(relayPrefix+"/drone/status_information", s.handleStatusInformation)

	post(frontendPrefix+"/login", s.handleLogin)
	r.HandleFunc(frontendPrefix+"/relayboxes/all", s.handleFleet).Methods(http.MethodGet)
	post(frontendPrefix+"/drone/takeoff", s.droneAction(s.orch.RequestTakeoff, "takeoff requested"))
	post(frontendPrefix+"/drone/land", s.droneAction(s.orch.RequestLanding, "landing requested"))
	post(frontendPrefix+"/drone/new_command", s.handleNewCommand)
	post(frontendPrefix+"/drone/status", s.handleDroneStatus)

	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, s.metrics.Handler()).Methods(http.MethodGet)
	}
	return s.logRequests(r)
}

// Start 监听配置端口并提供服务，直到 ctx 取消后优雅退出。
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", s.cfg.Gateway.HTTPPort))
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定监听器上提供服务，直到 ctx 取消。
// 返回：
// - error: 服务异常退出原因；正常关闭返回 nil
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.Gateway.ReadHeaderTimeout,
	}
	s.setStatus(status.GatewayRunning)
	s.logger.WithFields(logrus.Fields{"addr": ln.Addr().String(), "status": "gateway_running"}).Info("控制面已启动")

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.sampleLoop(loopCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.setStatus(status.GatewayStopped)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.setStatus(status.GatewayStopping)
	shutdownCtx, done := context.WithTimeout(context.Background(), s.cfg.Gateway.ShutdownTimeout)
	defer done()
	err := srv.Shutdown(shutdownCtx)
	s.setStatus(status.GatewayStopped)
	s.logger.WithField("status", "gateway_stopped").Info("控制面已停止")
	return err
}

func (s *Server) setStatus(st status.GatewayStatus) {
	s.mu.Lock()
	s.gwStatus = st
	s.mu.Unlock()
}

// sampleLoop 按 metrics.sample_interval 周期采样视频会话码率与 CPU 使用率。
func (s *Server) sampleLoop(ctx context.Context) {
	interval := s.cfg.Metrics.SampleInterval
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.sample(now)
		}
	}
}

func (s *Server) sample(now time.Time) {
	ms := s.video.Sample(s.orch.Registry().Sessions(), now)
	cpu := s.sampler.CPUPercent()
	s.mu.Lock()
	s.lastVideo = ms
	s.sampledAt = now
	s.cpu = cpu
	s.mu.Unlock()
}

// logRequests 为每个请求分配请求 ID 并记录访问日志。
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"code":       rec.code,
			"cost_ms":    time.Since(start).Milliseconds(),
		}).Debug("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return derrors.Wrap(derrors.CodeBadRequest, "invalid request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError 按错误码写出 {"code","error"}，HTTP 状态码与错误码一致。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := derrors.HTTPStatus(err)
	msg := err.Error()
	var ce *derrors.CodeError
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	if code >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{"path": r.URL.Path, "code": code}).Error("request failed")
	}
	writeJSON(w, code, ErrorResponse{Code: code, Error: msg})
}
