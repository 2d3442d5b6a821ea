package server

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"pixbuf/internal/stream"
)

type session struct {
	pc *webrtc.PeerConnection

	mu     sync.Mutex
	remove []func()
	closed bool
}

// addRemove records how to unsubscribe a sink. A sink attached after the
// session was closed is removed right away.
func (sess *session) addRemove(f func()) {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		f()
		return
	}
	sess.remove = append(sess.remove, f)
	sess.mu.Unlock()
}

func (sess *session) detach() {
	sess.mu.Lock()
	fns := sess.remove
	sess.remove = nil
	sess.closed = true
	sess.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

// POST /previews with an SDP offer containing a data channel. Every preview
// published after the channel opens is sent over it.
func (s *Server) handlePreviewPost(w http.ResponseWriter, r *http.Request) {
	allowCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	offerSDP, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || len(offerSDP) == 0 {
		http.Error(w, "empty offer", http.StatusBadRequest)
		return
	}

	api := webrtc.NewAPI()
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	id := uuid.New().String()
	sess := &session{pc: pc}
	log.Printf("preview session %s: created", id)

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			log.Printf("preview session %s: channel %q open", id, dc.Label())
			sess.addRemove(s.previews.Add(stream.NewDataChannelSink(dc, stream.DefaultMTU)))
		})
		dc.OnClose(func() {
			log.Printf("preview session %s: channel %q closed", id, dc.Label())
			sess.detach()
		})
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(offerSDP)}); err != nil {
		_ = pc.Close()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	select {
	case <-gatherComplete:
	case <-r.Context().Done():
		_ = pc.Close()
		return
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("preview session %s state: %s", id, state)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateDisconnected {
			s.closeSession(id)
		}
	})

	w.Header().Set("Content-Type", "application/sdp")
	w.Header().Set("Location", fmt.Sprintf("/previews/%s", id))
	w.WriteHeader(http.StatusCreated)
	_, _ = io.WriteString(w, pc.LocalDescription().SDP)
}

// DELETE /previews/{id} ends a session.
func (s *Server) handlePreviewResource(w http.ResponseWriter, r *http.Request) {
	allowCORS(w, r)
	id := strings.TrimPrefix(r.URL.Path, "/previews/")
	switch r.Method {
	case http.MethodDelete:
		if !s.closeSession(id) {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) closeSession(id string) bool {
	s.mu.Lock()
	sess := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if sess == nil {
		return false
	}
	sess.detach()
	_ = sess.pc.Close()
	log.Printf("preview session %s: closed", id)
	return true
}

const indexHTML = `<!doctype html>
<meta charset="utf-8" />
<title>pixbuf previews</title>
<style>body{font-family:system-ui;margin:2rem}canvas{border:1px solid #ccc;image-rendering:pixelated}</style>
<div>
  <input id="file" type="file" accept="image/*"/>
  <button id="sub">Subscribe</button>
  <button id="stop" disabled>Stop</button>
  <div id="msg"></div>
</div>
<canvas id="c"></canvas>
<script>
let pc=null, res=null, hdr=null, buf=null; const $=id=>document.getElementById(id);
$("file").onchange = async ()=>{
  const f=$("file").files[0]; if(!f) return;
  const resp=await fetch('/frames',{method:'POST',body:f});
  $("msg").textContent=await resp.text();
}
function draw(){
  const c=$("c"); c.width=hdr.width; c.height=hdr.height;
  const ctx=c.getContext('2d'); const img=ctx.createImageData(hdr.width,hdr.height);
  for(let i=0,j=0;i<buf.length;i+=3,j+=4){img.data[j]=buf[i];img.data[j+1]=buf[i+1];img.data[j+2]=buf[i+2];img.data[j+3]=255}
  ctx.putImageData(img,0,0);
}
$("sub").onclick = async ()=>{
  pc=new RTCPeerConnection(); const dc=pc.createDataChannel('previews'); dc.binaryType='arraybuffer';
  dc.onmessage = ev=>{
    if(typeof ev.data==='string'){hdr=JSON.parse(ev.data); buf=new Uint8Array(hdr.width*hdr.height*3); return}
    const p=new Uint8Array(ev.data); const cc=p[0]&15; let o=12+cc*4+2; const marker=(p[1]&128)!==0;
    const segs=[]; for(;;){const len=(p[o]<<8)|p[o+1], line=((p[o+2]&127)<<8)|p[o+3], off=((p[o+4]&127)<<8)|p[o+5]; const more=(p[o+4]&128)!==0; segs.push([len,line,off]); o+=6; if(!more) break}
    for(const [len,line,off] of segs){buf.set(p.subarray(o,o+len),(line*hdr.width+off)*3); o+=len}
    if(marker) draw();
  };
  const offer=await pc.createOffer(); await pc.setLocalDescription(offer);
  const resp=await fetch('/previews',{method:'POST',headers:{'Content-Type':'application/sdp'},body:offer.sdp});
  res=resp.headers.get('Location'); await pc.setRemoteDescription({type:'answer', sdp:await resp.text()});
  $("stop").disabled=false;
}
$("stop").onclick = async ()=>{
  if(res){await fetch(res,{method:'DELETE'})} if(pc){pc.close()} $("stop").disabled=true;
}
</script>`
