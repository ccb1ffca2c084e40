// Package plotserve implements the plot viewer service the trainer
// publishes to. It accepts plots over the same JSON wire format the
// training package emits, serves them as browsable HTML pages, and pushes
// live updates to connected dashboards over a websocket.
package plotserve

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tsawler/wastenet/logging"
	"github.com/tsawler/wastenet/training"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server is the viewer service. Create one with NewServer and mount its
// Router on an http.Server.
type Server struct {
	store   *plotStore
	hub     *hub
	log     *logging.Logger
	started time.Time
}

// NewServer builds a viewer with an empty in-memory plot store. A nil
// logger silences the server.
func NewServer(log *logging.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		store:   newPlotStore(defaultStoreLimit),
		hub:     newHub(log),
		log:     log,
		started: time.Now(),
	}
}

// Router builds the gin engine with every route the training client and the
// browser pages use. gin.Default would add its own console request logging;
// the viewer logs through the two-sink logger instead and keeps the console
// quiet.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/plot", s.ReceivePlot)
		api.POST("/batch-plot", s.ReceiveBatch)
	}

	r.GET("/health", s.Health)
	r.GET("/", s.Dashboard)
	r.GET("/ws", s.Websocket)
	r.GET("/plots/:id", s.PlotJSON)
	r.GET("/view/:id", s.ViewPlot)
	r.GET("/dashboard/:id", s.ViewBatch)

	return r
}

// ReceivePlot accepts a single plot and returns where it can be viewed
func (s *Server) ReceivePlot(c *gin.Context) {
	var pd training.PlotData
	if err := c.ShouldBindJSON(&pd); err != nil {
		Error(c, http.StatusBadRequest, "invalid_json", fmt.Errorf("failed to decode plot data: %v", err))
		return
	}
	if err := validatePlot(pd); err != nil {
		Error(c, http.StatusBadRequest, "invalid_plot", err)
		return
	}

	p := s.acceptPlot(pd, "")

	c.JSON(http.StatusOK, training.PlottingResponse{
		Success: true,
		Message: fmt.Sprintf("plot %q received", p.Data.Title),
		PlotID:  p.ID,
		PlotURL: "/plots/" + p.ID,
		ViewURL: "/view/" + p.ID,
	})
}

// batchRequest mirrors the payload the training client posts to
// /api/batch-plot
type batchRequest struct {
	Plots []training.PlotData `json:"plots"`
	Batch bool                `json:"batch"`
}

// ReceiveBatch accepts several plots at once and groups them under one
// dashboard page. Invalid plots are reported per entry; the batch fails
// outright only when nothing could be stored.
func (s *Server) ReceiveBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid_json", fmt.Errorf("failed to decode batch: %v", err))
		return
	}
	if len(req.Plots) == 0 {
		Error(c, http.StatusBadRequest, "empty_batch", fmt.Errorf("batch contains no plots"))
		return
	}

	batchID := uuid.New().String()
	results := make([]training.BatchPlotResult, 0, len(req.Plots))
	successful := 0

	for _, pd := range req.Plots {
		if err := validatePlot(pd); err != nil {
			results = append(results, training.BatchPlotResult{
				PlotType:  string(pd.PlotType),
				Message:   err.Error(),
				ErrorCode: "invalid_plot",
			})
			continue
		}
		p := s.acceptPlot(pd, batchID)
		results = append(results, training.BatchPlotResult{
			Success:  true,
			PlotID:   p.ID,
			PlotURL:  "/plots/" + p.ID,
			ViewURL:  "/view/" + p.ID,
			PlotType: string(pd.PlotType),
		})
		successful++
	}

	failed := len(req.Plots) - successful
	resp := training.BatchPlottingResponse{
		Success: failed == 0,
		Message: fmt.Sprintf("stored %d of %d plots", successful, len(req.Plots)),
		BatchID: batchID,
		Results: results,
		Summary: training.BatchSummary{
			TotalPlots: len(req.Plots),
			Successful: successful,
			Failed:     failed,
		},
	}
	if successful > 0 {
		resp.DashboardURL = "/dashboard/" + batchID
	}

	if successful == 0 {
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// acceptPlot stores the plot and notifies connected dashboards
func (s *Server) acceptPlot(pd training.PlotData, batchID string) *storedPlot {
	p := s.store.add(uuid.New().String(), batchID, pd)
	s.log.Debug("plot received",
		"plot_id", p.ID,
		"plot_type", string(pd.PlotType),
		"model", pd.ModelName,
		"title", pd.Title,
		"batch_id", batchID)
	s.notify(p)
	return p
}

// plotEvent is the message pushed to dashboard pages when a plot arrives
type plotEvent struct {
	Event     string `json:"event"`
	PlotID    string `json:"plot_id"`
	BatchID   string `json:"batch_id,omitempty"`
	Title     string `json:"title"`
	ModelName string `json:"model_name"`
	PlotType  string `json:"plot_type"`
	ViewURL   string `json:"view_url"`
}

func (s *Server) notify(p *storedPlot) {
	msg, err := json.Marshal(plotEvent{
		Event:     "plot",
		PlotID:    p.ID,
		BatchID:   p.BatchID,
		Title:     p.Data.Title,
		ModelName: p.Data.ModelName,
		PlotType:  string(p.Data.PlotType),
		ViewURL:   "/view/" + p.ID,
	})
	if err != nil {
		s.log.Error("failed to encode plot event", "error", err)
		return
	}
	s.hub.broadcast(msg)
}

func validatePlot(pd training.PlotData) error {
	if pd.PlotType == "" {
		return fmt.Errorf("plot %q is missing plot_type", pd.Title)
	}
	if len(pd.Series) == 0 {
		return fmt.Errorf("plot %q has no series", pd.Title)
	}
	return nil
}

// Health reports service liveness. The training client polls this before
// publishing.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"plots":      s.store.size(),
		"dashboards": s.hub.count(),
	})
}

// PlotJSON serves the stored plot data, the target of PlotURL
func (s *Server) PlotJSON(c *gin.Context) {
	p, ok := s.store.get(c.Param("id"))
	if !ok {
		Error(c, http.StatusNotFound, "not_found", fmt.Errorf("no plot with id %s", c.Param("id")))
		return
	}
	body, err := p.Data.ToJSON()
	if err != nil {
		Error(c, http.StatusInternalServerError, "encode_failed", err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// ViewPlot renders a single plot as a standalone HTML page, the target of
// ViewURL
func (s *Server) ViewPlot(c *gin.Context) {
	p, ok := s.store.get(c.Param("id"))
	if !ok {
		Error(c, http.StatusNotFound, "not_found", fmt.Errorf("no plot with id %s", c.Param("id")))
		return
	}
	page, err := training.RenderPlotReport([]training.PlotData{p.Data}, p.Data.Title)
	if err != nil {
		Error(c, http.StatusInternalServerError, "render_failed", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// ViewBatch renders every plot of a batch on one page, side by side, the
// target of DashboardURL
func (s *Server) ViewBatch(c *gin.Context) {
	batchID := c.Param("id")
	plots := s.store.batch(batchID)
	if len(plots) == 0 {
		Error(c, http.StatusNotFound, "not_found", fmt.Errorf("no batch with id %s", batchID))
		return
	}

	data := make([]training.PlotData, len(plots))
	for i, p := range plots {
		data[i] = p.Data
	}
	title := fmt.Sprintf("%s training dashboard", plots[0].Data.ModelName)
	page, err := training.RenderPlotReport(data, title)
	if err != nil {
		Error(c, http.StatusInternalServerError, "render_failed", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// Websocket upgrades the connection and registers it for plot events
func (s *Server) Websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its own error response
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	s.hub.add(conn)
	s.log.Debug("dashboard connected", "remote", conn.RemoteAddr().String())
}

type dashboardRow struct {
	Title      string
	ModelName  string
	PlotType   string
	ViewURL    string
	BatchURL   string
	ReceivedAt string
}

type dashboardData struct {
	Rows []dashboardRow
}

// Dashboard serves the landing page: recent plots newest first, with live
// updates over the websocket
func (s *Server) Dashboard(c *gin.Context) {
	recent := s.store.recent(50)
	rows := make([]dashboardRow, len(recent))
	for i, p := range recent {
		rows[i] = dashboardRow{
			Title:      p.Data.Title,
			ModelName:  p.Data.ModelName,
			PlotType:   string(p.Data.PlotType),
			ViewURL:    "/view/" + p.ID,
			BatchURL:   batchURL(p.BatchID),
			ReceivedAt: p.ReceivedAt.Format("15:04:05"),
		}
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, dashboardData{Rows: rows}); err != nil {
		Error(c, http.StatusInternalServerError, "render_failed", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func batchURL(batchID string) string {
	if batchID == "" {
		return ""
	}
	return "/dashboard/" + batchID
}

// Error writes a json error response in the envelope the training client
// parses
func Error(c *gin.Context, status int, code string, err error) {
	c.JSON(status, training.PlottingResponse{
		Success:   false,
		Message:   err.Error(),
		ErrorCode: code,
	})
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(dashboardHTML))

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>WasteNet Plot Viewer</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; background: #f5f6fa; color: #2d3436; margin: 0; padding: 24px; }
  h1 { font-size: 20px; margin: 0 0 4px 0; }
  p.sub { margin: 0 0 16px 0; font-size: 13px; color: #888888; }
  table { border-collapse: collapse; background: #ffffff; border-radius: 8px; box-shadow: 0 1px 4px rgba(0, 0, 0, 0.12); width: 100%; }
  th, td { text-align: left; padding: 8px 16px; font-size: 14px; border-bottom: 1px solid #eeeeee; }
  th { font-weight: 600; font-size: 13px; color: #555555; }
  tr:last-child td { border-bottom: none; }
  a { color: #0984e3; text-decoration: none; }
  a:hover { text-decoration: underline; }
  #status { float: right; font-size: 12px; color: #888888; }
</style>
</head>
<body>
<h1>WasteNet Plot Viewer <span id="status">connecting</span></h1>
<p class="sub">Plots published by training runs appear here as they arrive.</p>
<table>
  <thead>
    <tr><th>Received</th><th>Title</th><th>Model</th><th>Type</th><th></th></tr>
  </thead>
  <tbody id="plots">
  {{range .Rows}}
    <tr>
      <td>{{.ReceivedAt}}</td>
      <td><a href="{{.ViewURL}}">{{.Title}}</a></td>
      <td>{{.ModelName}}</td>
      <td>{{.PlotType}}</td>
      <td>{{if .BatchURL}}<a href="{{.BatchURL}}">dashboard</a>{{end}}</td>
    </tr>
  {{end}}
  </tbody>
</table>
<script>
(function () {
  var status = document.getElementById("status");
  var tbody = document.getElementById("plots");
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var sock = new WebSocket(proto + "//" + location.host + "/ws");

  sock.onopen = function () { status.textContent = "live"; };
  sock.onclose = function () { status.textContent = "disconnected"; };
  sock.onmessage = function (ev) {
    var event = JSON.parse(ev.data);
    if (event.event !== "plot") {
      return;
    }

    var row = tbody.insertRow(0);
    row.insertCell().textContent = new Date().toTimeString().slice(0, 8);

    var titleCell = row.insertCell();
    var link = document.createElement("a");
    link.href = event.view_url;
    link.textContent = event.title;
    titleCell.appendChild(link);

    row.insertCell().textContent = event.model_name;
    row.insertCell().textContent = event.plot_type;

    var batchCell = row.insertCell();
    if (event.batch_id) {
      var dash = document.createElement("a");
      dash.href = "/dashboard/" + event.batch_id;
      dash.textContent = "dashboard";
      batchCell.appendChild(dash);
    }
  };
})();
</script>
</body>
</html>
`
