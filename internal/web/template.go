package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/relay-latch/internal/mqtt"
	"github.com/sweeney/relay-latch/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": stateOrUnknown,
	"stateClass": func(ready bool, s string) string {
		switch stateOrUnknown(ready, s) {
		case "ON":
			return "on"
		case "OFF":
			return "off"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Relay Latch</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Relay Latch{{if .Live}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>State</h2>
<table>
<tr><th>Input</th><td id="input-state" class="{{stateClass .Ready (printf "%s" .Input)}}">{{stateOrUnknown .Ready (printf "%s" .Input)}}</td></tr>
<tr><th>Output</th><td id="output-state" class="{{stateClass .Ready (printf "%s" .Output)}}">{{stateOrUnknown .Ready (printf "%s" .Output)}}</td></tr>
<tr><th>Change pending</th><td id="pending">{{if .Pending}}yes{{else}}no{{end}}</td></tr>
<tr><th>Time in state</th><td id="time-in-state">{{if .Ready}}{{uptime .TimeInState}}{{else}}-{{end}}</td></tr>
</table>

<h2>Latch</h2>
<table>
<tr><th>Minimum on</th><td>{{.LatchTimes.MinimumOn}}</td></tr>
<tr><th>Minimum off</th><td>{{.LatchTimes.MinimumOff}}</td></tr>
<tr><th>Reloads</th><td>{{.Reloads}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>OUTPUT ON</th><td>{{.Counts.On}}</td></tr>
<tr><th>OUTPUT OFF</th><td>{{.Counts.Off}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Input driver</th><td>{{.Config.InputDriver}}</td></tr>
<tr><th>Output driver</th><td>{{.Config.OutputDriver}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Live}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topics = ["{{.Topic}}", "{{.TopicSystem}}"];
  var dot = document.getElementById("live-dot");
  var inEl = document.getElementById("input-state");
  var outEl = document.getElementById("output-state");
  var pendingEl = document.getElementById("pending");
  var timeEl = document.getElementById("time-in-state");
  // Start of the current output state, in browser time. null until known.
  var inStateMs = {{.InStateMs}};
  var since = inStateMs < 0 ? null : Date.now() - inStateMs;

  function setState(el, state) {
    el.textContent = state;
    el.className = state === "ON" ? "on" : state === "OFF" ? "off" : "unknown";
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function duration(ms) {
    var s = Math.max(0, Math.floor(ms / 1000));
    var d = Math.floor(s / 86400), h = Math.floor(s / 3600) % 24, m = Math.floor(s / 60) % 60;
    s = s % 60;
    if (d > 0) return d + "d " + h + "h " + m + "m " + s + "s";
    if (h > 0) return h + "h " + m + "m " + s + "s";
    if (m > 0) return m + "m " + s + "s";
    return s + "s";
  }

  setInterval(function() {
    if (since !== null) timeEl.textContent = duration(Date.now() - since);
  }, 1000);

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topics);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.latch) {
        // A transition leaves the output equal to the request.
        setState(inEl, msg.latch.input.state);
        setState(outEl, msg.latch.output.state);
        pendingEl.textContent = msg.latch.input.state !== msg.latch.output.state ? "yes" : "no";
        since = Date.now();
      } else if (msg.status && msg.status.ready) {
        setState(inEl, msg.status.input);
        setState(outEl, msg.status.output);
        pendingEl.textContent = msg.status.pending ? "yes" : "no";
        since = Date.now() - msg.status.time_in_state_ms;
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func stateOrUnknown(ready bool, s string) string {
	if !ready || s == "" {
		return "UNKNOWN"
	}
	return s
}

func renderHTML(w io.Writer, snap status.Snapshot, live bool) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime      time.Duration
		Topic       string
		TopicSystem string
		Live        bool
		InStateMs   int64 // -1 before the first sample
	}{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		Topic:       mqtt.Topic,
		TopicSystem: mqtt.TopicSystem,
		Live:        live,
		InStateMs:   -1,
	}
	if snap.Ready {
		data.InStateMs = snap.TimeInState.Milliseconds()
	}
	return indexTmpl.Execute(w, data)
}
