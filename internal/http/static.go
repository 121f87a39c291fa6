package http

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	gateTemplate     = "gate.html"
	notFoundTemplate = "notfound.html"
	errorTemplate    = "error.html"
)

const pageStyle = `
body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;margin:0;padding:2rem;background:#0b0b0c;color:#e8e8ea}
.container{max-width:680px;margin:0 auto}
.card{background:#151517;border:1px solid #2b2b2f;border-radius:12px;padding:1.25rem}
h1{font-size:1.25rem;margin:0 0 1rem}
input,button{font-size:1rem}
input[type=text],input[type=password],input[type=number]{width:100%;box-sizing:border-box;padding:.75rem;border-radius:8px;border:1px solid #2b2b2f;background:#0f0f11;color:#e8e8ea}
.row{display:flex;gap:.5rem;margin-top:.75rem;align-items:center}
button{padding:.75rem 1rem;border:1px solid #2b2b2f;background:#1f1f23;color:#e8e8ea;border-radius:8px;cursor:pointer}
small{opacity:.7}
pre{white-space:pre-wrap;word-break:break-word;background:#0f0f11;border:1px solid #2b2b2f;border-radius:8px;padding:.75rem}
.err{color:#ff8f8f}
a{color:#97b3ff}
`

var pages = template.Must(template.New("pages").Parse(`
{{define "head"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width,initial-scale=1"/>
<meta name="robots" content="noindex"/>
<title>urlitrim</title>
<style>` + pageStyle + `</style>
</head>
<body>
<div class="container">
{{end}}

{{define "foot"}}</div>
</body>
</html>{{end}}

{{define "` + gateTemplate + `"}}{{template "head" .}}
  <div class="card">
    {{if .NeedsPassword}}
    <div id="lock">
      <h1>This link is password protected</h1>
      <input id="pw" type="password" placeholder="Password" autofocus/>
      <div class="row"><button id="unlock">Unlock</button></div>
      <p id="pwerr" class="err"></p>
    </div>
    {{end}}
    <div id="preview"{{if .NeedsPassword}} hidden{{end}}>
      <h1>You are about to visit</h1>
      <pre id="dest">{{.OriginalURL}}</pre>
      <div class="row"><button id="continue">Continue</button></div>
      <p id="clickerr" class="err"></p>
    </div>
  </div>
  <p><small>{{.ShortURL}}</small></p>
<script>
const code = {{.ShortCode}};
const showPreview = {{.ShowPreview}};
let password = "";
let destination = {{.OriginalURL}};

async function post(path, body){
  const res = await fetch('/api/links/'+encodeURIComponent(code)+path, {
    method:'POST',
    headers:{'Content-Type':'application/json'},
    body:JSON.stringify(body||{})
  });
  const data = await res.json().catch(()=>({}));
  return {ok:res.ok, data};
}

async function go(){
  const r = await post('/click', password ? {password} : {});
  if(!r.ok){ document.getElementById('clickerr').textContent = r.data.error || 'Something went wrong'; return; }
  window.location.replace(r.data.originalUrl || destination);
}

async function unlock(){
  password = document.getElementById('pw').value;
  const r = await post('/verify', {password});
  if(!r.ok){ document.getElementById('pwerr').textContent = r.data.error || 'Invalid password'; return; }
  destination = r.data.originalUrl;
  if(!showPreview){ return go(); }
  document.getElementById('lock').hidden = true;
  document.getElementById('dest').textContent = destination;
  document.getElementById('preview').hidden = false;
}

const unlockBtn = document.getElementById('unlock');
if(unlockBtn){
  unlockBtn.addEventListener('click', unlock);
  document.getElementById('pw').addEventListener('keydown', e=>{ if(e.key==='Enter') unlock(); });
}
document.getElementById('continue').addEventListener('click', go);
</script>
{{template "foot" .}}{{end}}

{{define "` + notFoundTemplate + `"}}{{template "head" .}}
  <div class="card">
    <h1>Link not found</h1>
    <p>This short link does not exist, has expired, or has already been used.</p>
    <p><a href="{{.BaseURL}}/">Create a new short link</a></p>
  </div>
{{template "foot" .}}{{end}}

{{define "` + errorTemplate + `"}}{{template "head" .}}
  <div class="card">
    <h1>Something went wrong</h1>
    <p>Please try again in a moment.</p>
  </div>
{{template "foot" .}}{{end}}
`))

// RegisterStatic installs the HTML templates and wires a tiny inline
// page at GET "/".
func RegisterStatic(r *gin.Engine) {
	r.SetHTMLTemplate(pages)

	const page = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width,initial-scale=1"/>
<title>urlitrim</title>
<style>` + pageStyle + `</style>
</head>
<body>
<div class="container">
  <div class="card">
    <h1>urlitrim: make a short link</h1>
    <input id="url" type="text" placeholder="https://example.com/very/long/link"/>
    <div class="row">
      <input id="custom" type="text" placeholder="custom alias (optional)"/>
      <button id="go">Shorten</button>
    </div>
    <div class="row">
      <input id="ttl" type="number" min="1" placeholder="expires after N days (optional)"/>
      <input id="pw" type="password" placeholder="password (optional)"/>
    </div>
    <div class="row">
      <label><input id="once" type="checkbox"/> one-time link</label>
      <label><input id="preview" type="checkbox"/> show preview page</label>
    </div>
    <div id="out" style="margin-top:1rem"></div>
  </div>
  <p style="opacity:.7;margin-top:1rem">API: <code>POST /api/shorten</code>, <code>GET /:code</code>, <code>GET /api/links/:code</code>, <code>GET /api/links/:code/stats</code></p>
</div>
<script>
async function shorten(){
  const url = document.getElementById('url').value.trim();
  const custom = document.getElementById('custom').value.trim();
  const ttl = parseInt(document.getElementById('ttl').value, 10);
  const password = document.getElementById('pw').value;
  const body = { url };
  if(custom) body.custom = custom;
  if(ttl > 0) body.ttl = ttl;
  if(password) body.password = password;
  if(document.getElementById('once').checked) body.oneTime = true;
  if(document.getElementById('preview').checked) body.showPreview = true;
  const res = await fetch('/api/shorten', {
    method:'POST',
    headers:{'Content-Type':'application/json'},
    body:JSON.stringify(body)
  });
  const out = document.getElementById('out');
  const data = await res.json().catch(()=>({}));
  const pre = document.createElement('pre');
  pre.textContent = JSON.stringify(data, null, 2);
  out.replaceChildren(pre);
  if(!res.ok){ return; }
  const a = document.createElement('a');
  a.href = data.shortUrl; a.target = '_blank'; a.rel = 'noopener'; a.textContent = data.shortUrl;
  const p = document.createElement('p'); p.appendChild(a);
  out.appendChild(p);
}
document.getElementById('go').addEventListener('click', shorten);
document.getElementById('url').addEventListener('keydown', e=>{ if(e.key==='Enter') shorten(); });
</script>
</body>
</html>`
	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
	})
}
