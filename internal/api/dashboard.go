package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleDashboard(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="vi">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>hotnews</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: 'Inter', -apple-system, system-ui, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; }
        .header { background: linear-gradient(135deg, #1e293b, #334155); padding: 1.5rem 2rem; border-bottom: 1px solid #475569; display: flex; justify-content: space-between; align-items: center; }
        .header h1 { font-size: 1.5rem; color: #38bdf8; }
        .header .status { padding: 0.5rem 1rem; border-radius: 9999px; font-size: 0.875rem; font-weight: 600; background: #854d0e; color: #fde047; }
        .header .status.ready { background: #166534; color: #4ade80; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(420px, 1fr)); gap: 1rem; padding: 2rem; }
        .card { background: #1e293b; border: 1px solid #334155; border-radius: 12px; padding: 1.5rem; }
        .card h2 { font-size: 1rem; text-transform: uppercase; letter-spacing: 0.05em; color: #94a3b8; margin-bottom: 1rem; }
        .card.error { border-color: #f87171; }
        .card .err { color: #f87171; font-size: 0.875rem; margin-bottom: 0.75rem; }
        ol { list-style: none; }
        li { display: flex; gap: 0.75rem; padding: 0.5rem 0; border-bottom: 1px solid #334155; }
        li .likes { min-width: 4rem; text-align: right; font-weight: 700; color: #4ade80; }
        li a { color: #e2e8f0; text-decoration: none; }
        li a:hover { color: #38bdf8; }
        .footer { text-align: center; padding: 1rem; color: #475569; font-size: 0.75rem; }
    </style>
</head>
<body>
    <div class="header">
        <h1>hotnews</h1>
        <span class="status" id="status">Crawling…</span>
    </div>
    <div class="grid" id="sites"></div>
    <div class="footer" id="footer">Auto-refreshes every 30s</div>
    <script>
        const names = { vnexpress: 'VnExpress', tuoitre: 'TuoiTre' };
        function el(tag, cls, text) {
            const e = document.createElement(tag);
            if (cls) e.className = cls;
            if (text !== undefined) e.textContent = text;
            return e;
        }
        async function refresh() {
            const r = await fetch('/api/sites');
            const status = document.getElementById('status');
            if (r.status === 503) { status.textContent = 'Crawling…'; status.className = 'status'; return; }
            const d = await r.json();
            status.textContent = 'Updated ' + new Date(d.finished_at).toLocaleTimeString();
            status.className = 'status ready';
            const grid = document.getElementById('sites');
            grid.replaceChildren();
            for (const s of d.sites) {
                const card = el('div', s.error ? 'card error' : 'card');
                card.appendChild(el('h2', '', names[s.site] || s.site));
                if (s.error) card.appendChild(el('div', 'err', s.error));
                const list = el('ol');
                for (const e of s.entries) {
                    const li = el('li');
                    li.appendChild(el('span', 'likes', e.total_likes));
                    const a = el('a', '', e.title);
                    a.href = e.url; a.target = '_blank'; a.rel = 'noopener';
                    li.appendChild(a);
                    list.appendChild(li);
                }
                card.appendChild(list);
                grid.appendChild(card);
            }
            document.getElementById('footer').textContent = 'Run #' + d.runs + ' · auto-refreshes every 30s';
        }
        refresh().catch(console.error);
        setInterval(() => refresh().catch(console.error), 30000);
    </script>
</body>
</html>`
