package api

const streamDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Tip Stream | TipShield</title>
  <style>
    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    nav {
      background: #161b22;
      border-bottom: 1px solid #30363d;
      padding: 0 24px;
      height: 48px;
      display: flex;
      align-items: center;
      gap: 24px;
    }
    nav .brand { font-weight: 600; font-size: 15px; color: #e6edf3; }
    main { max-width: 860px; margin: 0 auto; padding: 32px 16px 64px; }
    h1 { margin: 0 0 8px; font-size: 28px; font-weight: 600; color: #e6edf3; }
    h2 {
      margin: 36px 0 12px;
      font-size: 18px;
      font-weight: 600;
      color: #e6edf3;
      padding-bottom: 8px;
      border-bottom: 1px solid #21262d;
    }
    .endpoint {
      display: inline-flex;
      gap: 10px;
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      padding: 10px 16px;
      font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace;
    }
    .method {
      background: #1f6feb;
      color: #fff;
      font-weight: 700;
      font-size: 11px;
      padding: 2px 7px;
      border-radius: 4px;
    }
    table { width: 100%; border-collapse: collapse; font-size: 13px; }
    th { text-align: left; padding: 8px 12px; background: #161b22; color: #8b949e; border-bottom: 1px solid #30363d; }
    td { padding: 8px 12px; border-bottom: 1px solid #21262d; vertical-align: top; }
    code, pre {
      font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace;
      font-size: 12px;
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 3px;
      color: #e6edf3;
    }
    code { padding: 1px 5px; }
    pre { padding: 16px; border-radius: 6px; overflow-x: auto; }
    pre code { border: none; padding: 0; }
  </style>
</head>
<body>
  <nav>
    <span class="brand">TipShield</span>
    <a href="/docs">API Reference</a>
  </nav>
  <main>
    <h1>Tip Stream</h1>
    <p>Server-Sent Events feed of every tip a tip injector reports.</p>
    <div class="endpoint"><span class="method">GET</span><span>/api/v1/tips/stream</span></div>

    <h2>Query parameters</h2>
    <table>
      <tr><th>Name</th><th>Description</th></tr>
      <tr><td><code>feeds</code></td><td>Comma separated feed names to receive. Omit for all feeds. Tips are published on <code>tips</code>.</td></tr>
      <tr><td><code>lastEventId</code></td><td>Resume after this event id. Same as the <code>Last-Event-ID</code> header, for clients that cannot set headers.</td></tr>
    </table>

    <h2>Event format</h2>
    <pre><code>id: 6f1c2a0e-8a55-4c1e-9a51-0f6a4a6b2d11
event: tips
data: {"id":"6f1c2a0e-8a55-4c1e-9a51-0f6a4a6b2d11","tabId":"A1B2","layout":"playbackSoundBadge","mediaMetaData":{"mediaType":"soundcloud","userUrl":"artist"},"receivedAt":"2026-01-01T00:00:00Z"}</code></pre>
    <p>Idle streams receive a <code>: keep-alive</code> comment every 25 seconds. Slow clients drop events rather than stall the publisher.</p>
    <p>The stream opens with a <code>retry: 3000</code> hint. A client that reconnects with <code>Last-Event-ID</code> first receives the retained events published after that id, up to the last 128. An unknown or evicted id replays nothing.</p>

    <h2>Example</h2>
    <pre><code>curl -N 'http://127.0.0.1:8288/api/v1/tips/stream?feeds=tips'</code></pre>
  </main>
</body>
</html>`
