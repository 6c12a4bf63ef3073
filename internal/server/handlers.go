package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// handleRoot serves the health text, or upgrades the request when it is a
// websocket handshake. Devices connect to the bare host.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r)
		return
	}
	s.handleHealth(w, r)
}

// handleWebSocket is the explicit websocket endpoint. It only accepts GET.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	s.serveWebSocket(w, r)
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr)
	if !s.hub.Attach(client) {
		s.logger.Info("rejecting connection during shutdown", "addr", r.RemoteAddr)
		closeMessage := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteMessage(websocket.CloseMessage, closeMessage)
		client.closeConnection()
	}
}

// handleHealth reports that the relay is up.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Takt relay is running! Registered clients: %d", s.registry.Len())
}

// handleTestPage serves a browser console for exercising the relay by hand.
func (s *Server) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		s.logger.Warn("error writing HTML response", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Takt Relay Console</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        fieldset { margin: 10px 0; }
        input[type="text"] {
            width: 200px;
            padding: 5px;
            margin-right: 10px;
        }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        button:disabled { background-color: #8aa; cursor: default; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Takt Relay Console</h1>

    <div id="status" class="status disconnected">Disconnected</div>
    <button id="connectButton" onclick="toggleConnection()">Connect</button>

    <fieldset>
        <legend>Register</legend>
        <input type="text" id="registerId" placeholder="cost-2-2408">
        <button class="needsConn" onclick="register()" disabled>Register</button>
    </fieldset>

    <fieldset>
        <legend>Takt alert</legend>
        <input type="text" id="targetId" placeholder="target client id">
        <input type="text" id="alertMessage" placeholder="message">
        <input type="text" id="taktTime" placeholder="takt time">
        <button class="needsConn" onclick="sendAlert()" disabled>Send</button>
    </fieldset>

    <fieldset>
        <legend>Raw</legend>
        <input type="text" id="rawInput" placeholder='{"type":"ping"}'>
        <button class="needsConn" onclick="sendRaw()" disabled>Send</button>
        <button class="needsConn" onclick="send({type: 'ping'})" disabled>Ping</button>
    </fieldset>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addMessage(message, type = 'info') {
            const messageElement = document.createElement('div');
            messageElement.style.margin = '5px 0';
            if (type === 'sent') {
                messageElement.style.color = 'blue';
                messageElement.textContent = '-> ' + message;
            } else if (type === 'received') {
                messageElement.style.color = 'green';
                messageElement.textContent = '<- ' + message;
            } else {
                messageElement.style.color = 'gray';
                messageElement.textContent = message;
            }
            messagesDiv.appendChild(messageElement);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
            document.querySelectorAll('.needsConn').forEach(function(b) { b.disabled = !connected; });
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() {
                addMessage('Connected to takt relay');
                updateStatus(true);
            };
            ws.onmessage = function(event) {
                addMessage(event.data, 'received');
            };
            ws.onclose = function() {
                addMessage('Connection closed');
                updateStatus(false);
                ws = null;
            };
            ws.onerror = function() {
                addMessage('Connection error');
                updateStatus(false);
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendText(text) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(text);
                addMessage(text, 'sent');
            }
        }

        function send(obj) {
            sendText(JSON.stringify(obj));
        }

        function register() {
            send({type: 'register', payload: {id: document.getElementById('registerId').value.trim()}});
        }

        function sendAlert() {
            send({
                type: 'taktViewer',
                clientId: document.getElementById('targetId').value.trim(),
                payload: {
                    message: document.getElementById('alertMessage').value,
                    takt_time: document.getElementById('taktTime').value
                }
            });
        }

        function sendRaw() {
            const input = document.getElementById('rawInput');
            const text = input.value.trim();
            if (text) {
                sendText(text);
                input.value = '';
            }
        }
    </script>
</body>
</html>`
