package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bark-labs/pushover-relay/internal/config"
	"github.com/bark-labs/pushover-relay/internal/model"
	"github.com/bark-labs/pushover-relay/internal/service"
	"github.com/bark-labs/pushover-relay/internal/storage"
	"github.com/bark-labs/pushover-relay/pkg/pushover"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Services groups the dependencies handlers call into.
type Services struct {
	Recipients *service.RecipientService
	Notices    *service.NoticeService
	Receipts   *service.ReceiptService
	Logs       *service.NoticeLogService
	Auth       *service.AuthService
}

// Server wires HTTP handlers.
type Server struct {
	app        *fiber.App
	recipients *service.RecipientService
	notices    *service.NoticeService
	receipts   *service.ReceiptService
	logs       *service.NoticeLogService
	auth       *service.AuthService
	pushover   pushover.Pusher
	store      storage.Store
	cfg        *config.Config
	log        zerolog.Logger
}

// New builds a server instance.
func New(cfg *config.Config, store storage.Store, svcs Services, pusher pushover.Pusher, log zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		IdleTimeout:           cfg.HTTP.ReadTimeout,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		AppName:               "pushover-relay",
		DisableStartupMessage: true,
	})
	s := &Server{
		app:        app,
		recipients: svcs.Recipients,
		notices:    svcs.Notices,
		receipts:   svcs.Receipts,
		logs:       svcs.Logs,
		auth:       svcs.Auth,
		pushover:   pusher,
		store:      store,
		cfg:        cfg,
		log:        log,
	}
	s.registerRoutes()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens and serves HTTP traffic.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.HTTP.Addr).Msg("http server listening")
	return s.app.Listen(s.cfg.HTTP.Addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Use(s.accessLog)

	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/status/endpoint", s.handleStatusEndpoint)

	s.app.Post("/auth/login", s.handleLogin)
	s.app.Get("/auth/profile", s.handleProfile)

	s.app.Get("/notice", s.requireAuth, s.handleNoticeQuery)
	s.app.Get("/notice/:title/:body", s.requireAuth, s.handleNoticePath)
	s.app.Post("/notice", s.requireAuth, s.handleNoticePost)

	s.app.Get("/sounds", s.requireAuth, s.handleSounds)
	s.app.Delete("/sounds/cache", s.requireAuth, s.handleResetSounds)

	recipients := s.app.Group("/recipients", s.requireAuth)
	recipients.Get("/", s.handleListRecipients)
	recipients.Post("/", s.handleUpsertRecipient)
	recipients.Get("/:user", s.handleGetRecipient)
	recipients.Post("/:user/verify", s.handleVerifyRecipient)
	recipients.Put("/:user/status", s.handleRecipientStatus)
	recipients.Delete("/:user", s.handleDeleteRecipient)

	receipts := s.app.Group("/receipts", s.requireAuth)
	receipts.Get("/", s.handleListReceipts)
	receipts.Post("/refresh", s.handleRefreshPending)
	receipts.Get("/:receipt", s.handleRefreshReceipt)
	receipts.Post("/:receipt/cancel", s.handleCancelReceipt)

	logGroup := s.app.Group("/api/notice/log", s.requireAuth)
	logGroup.Get("/list", s.handleLogList)
	logGroup.Get("/count/date", s.handleLogCountDate)
	logGroup.Get("/count/status", s.handleLogCountStatus)
	logGroup.Get("/count/priority", s.handleLogCountPriority)
	logGroup.Get("/count/recipient", s.handleLogCountRecipient)
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("took", time.Since(start)).
		Msg("request")
	return err
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatusEndpoint(c *fiber.Ctx) error {
	token := c.Get("API-TOKEN")
	expected := strings.TrimSpace(s.cfg.Pushover.Token)
	if expected == "" || token != expected {
		return c.JSON(model.StatusRes{Status: "unauthorized"})
	}
	ctx := c.UserContext()
	recipients, err := s.recipients.List(ctx)
	if err != nil {
		return c.JSON(model.StatusRes{Status: "error"})
	}
	active := 0
	for _, r := range recipients {
		if r.Active() {
			active++
		}
	}
	pending := 0
	if tracked, err := s.receipts.List(ctx); err == nil {
		for _, r := range tracked {
			if r.Pending() {
				pending++
			}
		}
	}
	status := "offline"
	if _, err := s.pushover.RefreshSounds(ctx); err == nil {
		status = "online"
	}
	return c.JSON(model.StatusRes{
		Status:             status,
		ActiveRecipientNum: active,
		AllRecipientNum:    len(recipients),
		PendingReceiptNum:  pending,
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.ErrorWithCode(model.BadInputCode, "malformed request body"))
	}
	if !s.auth.Enabled() {
		return c.JSON(model.Success("login not required", fiber.Map{
			"token":    "",
			"enabled":  false,
			"username": "guest",
		}))
	}
	token, err := s.auth.Authenticate(req.Username, req.Password)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(model.Error(err.Error()))
	}
	return c.JSON(model.Success("logged in", fiber.Map{
		"token":    token,
		"enabled":  true,
		"username": s.auth.Username(),
	}))
}

func (s *Server) handleProfile(c *fiber.Ctx) error {
	if !s.auth.Enabled() {
		return c.JSON(model.Success("ok", fiber.Map{"enabled": false, "username": "guest"}))
	}
	claims, err := s.auth.Validate(extractBearerToken(c.Get("Authorization")))
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(model.Error("session expired"))
	}
	return c.JSON(model.Success("ok", fiber.Map{"enabled": true, "username": claims.Username}))
}

func (s *Server) handleNoticeQuery(c *fiber.Ctx) error {
	req := noticeFromQuery(c)
	req.Title = c.Query("title")
	req.Message = c.Query("message")
	return s.dispatchNotice(c, req)
}

func (s *Server) handleNoticePath(c *fiber.Ctx) error {
	req := noticeFromQuery(c)
	req.Title = decodePathSegment(c.Params("title"))
	req.Message = decodePathSegment(c.Params("body"))
	return s.dispatchNotice(c, req)
}

func (s *Server) handleNoticePost(c *fiber.Ctx) error {
	var req model.NoticeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.ErrorWithCode(model.BadInputCode, "malformed request body"))
	}
	return s.dispatchNotice(c, req)
}

func (s *Server) dispatchNotice(c *fiber.Ctx, req model.NoticeRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(http.StatusBadRequest).JSON(model.ErrorWithCode(model.BadInputCode, "message is required"))
	}
	summary, results, err := s.notices.Broadcast(c.UserContext(), req)
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("sent", fiber.Map{"summary": summary, "results": results}))
}

func (s *Server) handleSounds(c *fiber.Ctx) error {
	sounds, err := s.pushover.Sounds(c.UserContext())
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("ok", sounds))
}

func (s *Server) handleResetSounds(c *fiber.Ctx) error {
	s.pushover.ResetSounds()
	return c.JSON(model.Success("sound cache cleared", nil))
}

func (s *Server) handleListRecipients(c *fiber.Ctx) error {
	views, err := s.recipients.ListViews(c.UserContext())
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("ok", views))
}

func (s *Server) handleGetRecipient(c *fiber.Ctx) error {
	recipient, err := s.recipients.Get(c.UserContext(), c.Params("user"))
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("ok", recipient))
}

func (s *Server) handleUpsertRecipient(c *fiber.Ctx) error {
	var req service.RecipientRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.ErrorWithCode(model.BadInputCode, "malformed request body"))
	}
	if strings.TrimSpace(req.UserKey) == "" {
		return c.Status(http.StatusBadRequest).JSON(model.ErrorWithCode(model.BadInputCode, "userKey is required"))
	}
	recipient, err := s.recipients.Upsert(c.UserContext(), req)
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("saved", recipient))
}

func (s *Server) handleVerifyRecipient(c *fiber.Ctx) error {
	recipient, err := s.recipients.Verify(c.UserContext(), c.Params("user"))
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("verified", recipient))
}

func (s *Server) handleRecipientStatus(c *fiber.Ctx) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.ErrorWithCode(model.BadInputCode, "malformed request body"))
	}
	switch strings.ToUpper(strings.TrimSpace(req.Status)) {
	case model.RecipientStatusActive, model.RecipientStatusStop:
	default:
		return c.Status(http.StatusBadRequest).JSON(model.ErrorWithCode(model.BadInputCode, "status must be ACTIVE or STOP"))
	}
	recipient, err := s.recipients.UpdateStatus(c.UserContext(), c.Params("user"), req.Status)
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("updated", recipient))
}

func (s *Server) handleDeleteRecipient(c *fiber.Ctx) error {
	if err := s.recipients.Delete(c.UserContext(), c.Params("user")); err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("deleted", nil))
}

func (s *Server) handleListReceipts(c *fiber.Ctx) error {
	tracked, err := s.receipts.List(c.UserContext())
	if err != nil {
		return s.respondErr(c, err)
	}
	if c.QueryBool("pending") {
		open := tracked[:0]
		for _, r := range tracked {
			if r.Pending() {
				open = append(open, r)
			}
		}
		tracked = open
	}
	return c.JSON(model.Success("ok", tracked))
}

func (s *Server) handleRefreshReceipt(c *fiber.Ctx) error {
	tracked, err := s.receipts.Refresh(c.UserContext(), c.Params("receipt"))
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("ok", tracked))
}

func (s *Server) handleRefreshPending(c *fiber.Ctx) error {
	n, err := s.receipts.RefreshPending(c.UserContext())
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("refreshed", fiber.Map{"refreshed": n}))
}

func (s *Server) handleCancelReceipt(c *fiber.Ctx) error {
	tracked, err := s.receipts.Cancel(c.UserContext(), c.Params("receipt"))
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("cancelled", tracked))
}

func (s *Server) handleLogList(c *fiber.Ctx) error {
	page, err := s.logs.Query(c.UserContext(), parseLogFilter(c))
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("ok", page))
}

func (s *Server) handleLogCountDate(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.logs.CountByDate(c.UserContext(), c.Query("dateType", "day"), begin, end)
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("ok", data))
}

func (s *Server) handleLogCountStatus(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.logs.CountByStatus(c.UserContext(), begin, end)
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("ok", data))
}

func (s *Server) handleLogCountPriority(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.logs.CountByPriority(c.UserContext(), begin, end)
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("ok", data))
}

func (s *Server) handleLogCountRecipient(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.logs.CountByRecipient(c.UserContext(), begin, end)
	if err != nil {
		return s.respondErr(c, err)
	}
	return c.JSON(model.Success("ok", data))
}

// respondErr maps service errors onto status codes: missing records are 404,
// failures talking to Pushover are 502 and the rest are 400.
func (s *Server) respondErr(c *fiber.Ctx, err error) error {
	var upstream *pushover.Error
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(http.StatusNotFound).JSON(model.ErrorWithCode(model.NotFoundCode, err.Error()))
	case errors.As(err, &upstream):
		s.log.Warn().Err(err).Str("path", c.Path()).Msg("pushover call failed")
		return c.Status(http.StatusBadGateway).JSON(model.ErrorWithCode(model.UpstreamCode, err.Error()))
	default:
		return c.Status(http.StatusBadRequest).JSON(model.Error(err.Error()))
	}
}

func (s *Server) requireAuth(c *fiber.Ctx) error {
	if !s.auth.Enabled() {
		return c.Next()
	}
	token := extractBearerToken(c.Get("Authorization"))
	if token == "" {
		return c.Status(http.StatusUnauthorized).JSON(model.Error("login required"))
	}
	claims, err := s.auth.Validate(token)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(model.Error("session expired"))
	}
	c.Locals("username", claims.Username)
	return c.Next()
}

func noticeFromQuery(c *fiber.Ctx) model.NoticeRequest {
	req := model.NoticeRequest{
		URL:       c.Query("url"),
		URLTitle:  c.Query("urlTitle"),
		Priority:  c.Query("priority"),
		Sound:     c.Query("sound"),
		HTML:      c.QueryBool("html"),
		Monospace: c.QueryBool("monospace"),
		Retry:     c.QueryInt("retry"),
		Expire:    c.QueryInt("expire"),
		Callback:  c.Query("callback"),
	}
	if keys := strings.TrimSpace(c.Query("userKeys")); keys != "" {
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				req.UserKeys = append(req.UserKeys, k)
			}
		}
	}
	return req
}

func decodePathSegment(value string) string {
	if value == "" {
		return value
	}
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return value
	}
	return decoded
}

func parseLogFilter(c *fiber.Ctx) model.NoticeLogFilter {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize", "10"))
	begin, end := parseTimeRange(c)
	filter := model.NoticeLogFilter{
		UserKey:   c.Query("userKey"),
		Status:    c.Query("status"),
		BeginTime: begin,
		EndTime:   end,
		Page:      page,
		PageSize:  pageSize,
	}
	if raw := c.Query("priority"); raw != "" {
		if p, err := pushover.ParsePriority(raw); err == nil {
			v := int(p)
			filter.Priority = &v
		}
	}
	return filter
}

func parseTimeRange(c *fiber.Ctx) (*time.Time, *time.Time) {
	return parseTime(c.Query("beginTime")), parseTime(c.Query("endTime"))
}

func parseTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func extractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
