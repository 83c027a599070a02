package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"bookcal/internal/booking"
)

var pageTmpl = template.Must(template.New("calendar").Funcs(template.FuncMap{
	"toggleAction": toggleAction,
}).Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>bookcal · week of {{.Grid.Week}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 1rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0; text-align: center; }
th { padding: .25rem .5rem; }
button.slot { width: 6rem; height: 2rem; border: 0; background: #fff; cursor: pointer; }
button.slot.booked { background: #2f7d32; color: #fff; }
button.slot.closed { background: #eee; color: #999; cursor: not-allowed; }
nav a { margin-right: 1rem; }
</style>
</head>
<body>
<div id="bookcal" data-ready="false" data-offset="{{.Grid.Offset}}">
{{- if .Nav}}
<nav>
<a href="?offset={{.Prev}}" data-action="nav:/calendar?offset={{.Prev}}">&larr; prev</a>
<strong>{{.Grid.Week}}</strong>
<a href="?offset={{.Next}}" data-action="nav:/calendar?offset={{.Next}}">next &rarr;</a>
</nav>
{{- end}}
<table>
<thead><tr><th></th>{{range .Grid.Days}}<th{{if .Closed}} class="closed"{{end}}>{{.Weekday}}<br>{{.Date}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Grid.Rows}}
<tr><th>{{.Label}}</th>{{range .Cells}}<td><button class="slot{{if .Booked}} booked{{end}}{{if .Closed}} closed{{end}}" data-day="{{.Day}}" data-row="{{.Row}}" data-action="{{toggleAction $.Grid.Offset .Day .Row}}"{{if .Closed}} disabled{{end}}>{{if .Booked}}booked{{end}}</button></td>{{end}}</tr>
{{- end}}
</tbody>
</table>
</div>
<script>
(function () {
  var root = document.getElementById("bookcal");
  var offset = parseInt(root.dataset.offset, 10) || 0;
  var apply = {
    alert: function (m) { window.alert(m); },
    log: function (m) { console.log(m); },
    open: function (u, t) { window.open(u, t); },
    navigate: function (p) { location.href = p; },
    back: function () { history.back(); },
    reload: function () { location.reload(); },
    copy: function (t) { if (navigator.clipboard) navigator.clipboard.writeText(t); },
    download: function (name, body) {
      var a = document.createElement("a");
      a.href = URL.createObjectURL(new Blob([body || ""]));
      a.download = name;
      a.click();
      URL.revokeObjectURL(a.href);
    },
    scroll: function (sel) { var el = document.querySelector(sel); if (el) el.scrollIntoView(); },
    toggle_class: function (sel, cls) { var el = document.querySelector(sel); if (el) el.classList.toggle(cls); },
    store_set: function (k, v) { localStorage.setItem(k, v || ""); },
    store_get: function (k) { var v = localStorage.getItem(k); if (v !== null) console.log(v); },
    store_remove: function (k) { localStorage.removeItem(k); },
    api: function (method, path, body) {
      var init = {method: method};
      if (body) { init.body = body; init.headers = {"Content-Type": "application/json"}; }
      fetch(path, init).catch(function () {});
    }
  };
  function replay(effects) {
    (effects || []).forEach(function (e) {
      var fn = apply[e.effect];
      if (fn) fn.apply(null, e.args || []);
    });
  }
  root.addEventListener("click", function (ev) {
    var btn = ev.target.closest("button.slot");
    if (!btn || btn.disabled) return;
    fetch("/api/calendar/toggle", {
      method: "POST",
      headers: {"Content-Type": "application/json"},
      body: JSON.stringify({offset: offset, day: +btn.dataset.day, row: +btn.dataset.row})
    }).then(function (r) { return r.ok ? r.json() : null; }).then(function (res) {
      if (!res) return;
      btn.classList.toggle("booked", res.booked);
      btn.textContent = res.booked ? "booked" : "";
      replay(res.effects);
    });
  });
  root.dataset.ready = "true";
})();
</script>
</body>
</html>
`))

type pageData struct {
	Grid booking.Grid
	Nav  bool
	Prev int
	Next int
}

// toggleAction is the action string a generic host runs for a cell click.
func toggleAction(offset, day, row int) string {
	return fmt.Sprintf(`api:POST /api/calendar/toggle|{"offset":%d,"day":%d,"row":%d}`, offset, day, row)
}

// GET /calendar?offset=N[&nav=0]
func (s *Server) handleCalendarPage(c *gin.Context) {
	offset := parseIntDefault(c.Query("offset"), 0)
	data := pageData{
		Grid: s.sched.View(c.Request.Context(), offset),
		Nav:  c.Query("nav") != "0",
		Prev: offset - 1,
		Next: offset + 1,
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		s.logger.Errorw("render calendar page failed", "err", err)
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
