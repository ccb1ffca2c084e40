package training

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// reportTemplate lays panels out left to right, wrapping on narrow screens,
// so a training batch's accuracy and loss panels render side by side
var reportTemplate = template.Must(template.New("plot-report").Parse(plotReportHTML))

type reportData struct {
	Title       string
	GeneratedAt string
	PlotJSON    template.JS
}

// RenderPlotReport renders the plots into a single self-contained HTML page.
// The page needs no network access to display, so reports remain usable when
// the viewer service is not running.
func RenderPlotReport(plots []PlotData, title string) ([]byte, error) {
	if len(plots) == 0 {
		return nil, fmt.Errorf("no plots to render")
	}

	payload, err := json.Marshal(plots)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plots: %w", err)
	}

	var buf bytes.Buffer
	err = reportTemplate.Execute(&buf, reportData{
		Title:       title,
		GeneratedAt: time.Now().Format(time.RFC1123),
		PlotJSON:    template.JS(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render plot report: %w", err)
	}

	return buf.Bytes(), nil
}

// SavePlotReport writes the raw plot JSON and the rendered HTML report next
// to each other and returns both paths
func SavePlotReport(plots []PlotData, dir, baseName, title string) (jsonPath string, htmlPath string, err error) {
	if err = os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create report directory: %w", err)
	}

	payload, err := json.MarshalIndent(plots, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal plots: %w", err)
	}

	jsonPath = filepath.Join(dir, baseName+".json")
	if err = os.WriteFile(jsonPath, payload, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write plot JSON: %w", err)
	}

	page, err := RenderPlotReport(plots, title)
	if err != nil {
		return "", "", err
	}

	htmlPath = filepath.Join(dir, baseName+".html")
	if err = os.WriteFile(htmlPath, page, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write plot report: %w", err)
	}

	return jsonPath, htmlPath, nil
}

const plotReportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; background: #f5f6fa; color: #2d3436; margin: 0; padding: 24px; }
  h1 { font-size: 20px; margin: 0 0 16px 0; }
  .plots { display: flex; flex-wrap: wrap; gap: 24px; }
  .plot-card { background: #ffffff; border-radius: 8px; box-shadow: 0 1px 4px rgba(0, 0, 0, 0.12); padding: 16px; }
  .plot-card h2 { font-size: 15px; font-weight: 600; margin: 0 0 8px 0; }
  canvas { display: block; }
  footer { margin-top: 24px; font-size: 12px; color: #888888; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="plots" id="plots"></div>
<footer>Generated {{.GeneratedAt}}</footer>
<script>
(function () {
  var plots = {{.PlotJSON}};
  var container = document.getElementById("plots");

  plots.forEach(function (plot) {
    var card = document.createElement("div");
    card.className = "plot-card";

    var heading = document.createElement("h2");
    heading.textContent = plot.title;
    card.appendChild(heading);

    var canvas = document.createElement("canvas");
    canvas.width = (plot.config && plot.config.width) || 800;
    canvas.height = (plot.config && plot.config.height) || 600;
    card.appendChild(canvas);
    container.appendChild(card);

    var kind = plot.series && plot.series.length > 0 ? plot.series[0].type : "line";
    if (kind === "heatmap") {
      drawHeatmap(plot, canvas);
    } else {
      drawLines(plot, canvas);
    }
  });

  function styleOf(series, key, fallback) {
    if (series.style && series.style[key] !== undefined) {
      return series.style[key];
    }
    return fallback;
  }

  function formatTick(v) {
    if (Math.abs(v - Math.round(v)) < 1e-9) {
      return String(Math.round(v));
    }
    return v.toFixed(2);
  }

  function drawLines(plot, canvas) {
    var ctx = canvas.getContext("2d");
    var W = canvas.width;
    var H = canvas.height;
    var margin = { top: 24, right: 24, bottom: 56, left: 72 };
    var plotW = W - margin.left - margin.right;
    var plotH = H - margin.top - margin.bottom;

    var xMin = Infinity, xMax = -Infinity, yMin = Infinity, yMax = -Infinity;
    plot.series.forEach(function (s) {
      s.data.forEach(function (p) {
        if (p.x < xMin) xMin = p.x;
        if (p.x > xMax) xMax = p.x;
        if (p.y < yMin) yMin = p.y;
        if (p.y > yMax) yMax = p.y;
      });
    });
    if (!isFinite(xMin)) { xMin = 0; xMax = 1; }
    if (!isFinite(yMin)) { yMin = 0; yMax = 1; }
    if (xMax === xMin) { xMax = xMin + 1; }
    if (yMax === yMin) { yMax = yMin + 1; }
    var pad = (yMax - yMin) * 0.05;
    yMin -= pad;
    yMax += pad;

    function sx(x) { return margin.left + (x - xMin) / (xMax - xMin) * plotW; }
    function sy(y) { return margin.top + plotH - (y - yMin) / (yMax - yMin) * plotH; }

    ctx.fillStyle = "#ffffff";
    ctx.fillRect(0, 0, W, H);
    ctx.font = "12px sans-serif";

    var showGrid = !plot.config || plot.config.show_grid !== false;
    var i, v, x, y;
    for (i = 0; i <= 5; i++) {
      v = yMin + (yMax - yMin) * i / 5;
      y = sy(v);
      if (showGrid) {
        ctx.strokeStyle = "#e8e8e8";
        ctx.lineWidth = 1;
        ctx.beginPath();
        ctx.moveTo(margin.left, y);
        ctx.lineTo(margin.left + plotW, y);
        ctx.stroke();
      }
      ctx.fillStyle = "#555555";
      ctx.textAlign = "right";
      ctx.textBaseline = "middle";
      ctx.fillText(v.toFixed(3), margin.left - 8, y);
    }
    var xTicks = Math.min(10, Math.max(1, Math.round(xMax - xMin)));
    for (i = 0; i <= xTicks; i++) {
      v = xMin + (xMax - xMin) * i / xTicks;
      x = sx(v);
      if (showGrid) {
        ctx.strokeStyle = "#e8e8e8";
        ctx.lineWidth = 1;
        ctx.beginPath();
        ctx.moveTo(x, margin.top);
        ctx.lineTo(x, margin.top + plotH);
        ctx.stroke();
      }
      ctx.fillStyle = "#555555";
      ctx.textAlign = "center";
      ctx.textBaseline = "top";
      ctx.fillText(formatTick(v), x, margin.top + plotH + 8);
    }

    ctx.strokeStyle = "#333333";
    ctx.lineWidth = 1;
    ctx.beginPath();
    ctx.moveTo(margin.left, margin.top);
    ctx.lineTo(margin.left, margin.top + plotH);
    ctx.lineTo(margin.left + plotW, margin.top + plotH);
    ctx.stroke();

    if (plot.config) {
      ctx.fillStyle = "#333333";
      ctx.textAlign = "center";
      if (plot.config.x_axis_label) {
        ctx.textBaseline = "bottom";
        ctx.fillText(plot.config.x_axis_label, margin.left + plotW / 2, H - 8);
      }
      if (plot.config.y_axis_label) {
        ctx.save();
        ctx.translate(14, margin.top + plotH / 2);
        ctx.rotate(-Math.PI / 2);
        ctx.textBaseline = "middle";
        ctx.fillText(plot.config.y_axis_label, 0, 0);
        ctx.restore();
      }
    }

    plot.series.forEach(function (s) {
      ctx.strokeStyle = styleOf(s, "color", "#333333");
      ctx.lineWidth = styleOf(s, "line_width", 2);
      ctx.setLineDash(styleOf(s, "line_style", "solid") === "dashed" ? [6, 4] : []);
      ctx.beginPath();
      s.data.forEach(function (p, idx) {
        if (idx === 0) {
          ctx.moveTo(sx(p.x), sy(p.y));
        } else {
          ctx.lineTo(sx(p.x), sy(p.y));
        }
      });
      ctx.stroke();
      ctx.setLineDash([]);
    });

    if (plot.config && plot.config.show_legend) {
      var pos = "upper right";
      if (plot.config.custom_options && plot.config.custom_options.legend_position) {
        pos = plot.config.custom_options.legend_position;
      }
      drawLegend(ctx, plot.series, pos, margin, plotW, plotH);
    }
  }

  function drawLegend(ctx, series, position, margin, plotW, plotH) {
    var lineH = 18;
    var boxW = 0;
    ctx.font = "12px sans-serif";
    series.forEach(function (s) {
      boxW = Math.max(boxW, ctx.measureText(s.name).width);
    });
    boxW += 50;
    var boxH = series.length * lineH + 12;

    var bx, by;
    if (position.indexOf("lower") >= 0) {
      by = margin.top + plotH - boxH - 12;
    } else {
      by = margin.top + 12;
    }
    if (position.indexOf("left") >= 0) {
      bx = margin.left + 12;
    } else {
      bx = margin.left + plotW - boxW - 12;
    }

    ctx.fillStyle = "rgba(255, 255, 255, 0.85)";
    ctx.fillRect(bx, by, boxW, boxH);
    ctx.strokeStyle = "#cccccc";
    ctx.lineWidth = 1;
    ctx.strokeRect(bx, by, boxW, boxH);

    series.forEach(function (s, i) {
      var cy = by + 6 + i * lineH + lineH / 2;
      ctx.strokeStyle = styleOf(s, "color", "#333333");
      ctx.lineWidth = styleOf(s, "line_width", 2);
      ctx.setLineDash(styleOf(s, "line_style", "solid") === "dashed" ? [6, 4] : []);
      ctx.beginPath();
      ctx.moveTo(bx + 8, cy);
      ctx.lineTo(bx + 32, cy);
      ctx.stroke();
      ctx.setLineDash([]);
      ctx.fillStyle = "#333333";
      ctx.textAlign = "left";
      ctx.textBaseline = "middle";
      ctx.fillText(s.name, bx + 38, cy);
    });
  }

  function drawHeatmap(plot, canvas) {
    var ctx = canvas.getContext("2d");
    var W = canvas.width;
    var H = canvas.height;
    var margin = { top: 24, right: 24, bottom: 96, left: 96 };
    var s = plot.series[0];

    var xCats = [], yCats = [], zMax = 0;
    s.data.forEach(function (p) {
      if (xCats.indexOf(p.x) < 0) xCats.push(p.x);
      if (yCats.indexOf(p.y) < 0) yCats.push(p.y);
      if (p.z > zMax) zMax = p.z;
    });

    var cellW = (W - margin.left - margin.right) / xCats.length;
    var cellH = (H - margin.top - margin.bottom) / yCats.length;

    ctx.fillStyle = "#ffffff";
    ctx.fillRect(0, 0, W, H);
    ctx.font = "12px sans-serif";

    s.data.forEach(function (p) {
      var xi = xCats.indexOf(p.x);
      var yi = yCats.indexOf(p.y);
      var t = zMax > 0 ? p.z / zMax : 0;
      var x0 = margin.left + xi * cellW;
      var y0 = margin.top + yi * cellH;
      var chan = Math.round(255 - t * 175);
      ctx.fillStyle = "rgb(" + chan + ", " + chan + ", 255)";
      ctx.fillRect(x0, y0, cellW, cellH);
      ctx.fillStyle = t > 0.6 ? "#ffffff" : "#333333";
      ctx.textAlign = "center";
      ctx.textBaseline = "middle";
      ctx.fillText(p.label ? p.label : String(p.z), x0 + cellW / 2, y0 + cellH / 2);
    });

    ctx.fillStyle = "#333333";
    xCats.forEach(function (c, i) {
      ctx.save();
      ctx.translate(margin.left + i * cellW + cellW / 2, H - margin.bottom + 8);
      ctx.rotate(Math.PI / 4);
      ctx.textAlign = "left";
      ctx.textBaseline = "top";
      ctx.fillText(String(c), 0, 0);
      ctx.restore();
    });
    yCats.forEach(function (c, i) {
      ctx.textAlign = "right";
      ctx.textBaseline = "middle";
      ctx.fillText(String(c), margin.left - 8, margin.top + i * cellH + cellH / 2);
    });

    if (plot.config) {
      ctx.textAlign = "center";
      if (plot.config.x_axis_label) {
        ctx.textBaseline = "bottom";
        ctx.fillText(plot.config.x_axis_label, margin.left + (W - margin.left - margin.right) / 2, H - 6);
      }
      if (plot.config.y_axis_label) {
        ctx.save();
        ctx.translate(14, margin.top + (H - margin.top - margin.bottom) / 2);
        ctx.rotate(-Math.PI / 2);
        ctx.textBaseline = "middle";
        ctx.fillText(plot.config.y_axis_label, 0, 0);
        ctx.restore();
      }
    }
  }
})();
</script>
</body>
</html>
`
