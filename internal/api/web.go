package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/orchestrator"
	"github.com/oriys/whisk/internal/werr"
)

// webExtensions maps a web action's URL extension to the content type its
// result shapes into (spec §6 web-action output shaping).
var webExtensions = map[string]string{
	"json": "application/json",
	"html": "text/html",
	"text": "text/plain",
	"svg":  "image/svg+xml",
	"http": "", // shaped from the result's own statusCode/headers/body fields
}

// WebAction handles ANY /web/{ns}/{pkg}/{nameext}: an unauthenticated,
// blocking invocation of an action published with web_export=true, whose
// response is shaped by the trailing extension on the action name rather
// than returned as an activation record.
func (h *Handler) WebAction(w http.ResponseWriter, r *http.Request) {
	ns, pkg, nameext := r.PathValue("ns"), r.PathValue("pkg"), r.PathValue("nameext")

	name, ext, err := splitExtension(nameext)
	if err != nil {
		writeError(w, err)
		return
	}
	if pkg == "default" {
		pkg = ""
	}

	action, err := h.Store.GetAction(r.Context(), ns, pkg, name)
	if err != nil {
		writeError(w, err)
		return
	}
	if !action.WebExport {
		writeError(w, werr.New(werr.KindForbidden, "action is not web-exported"))
		return
	}

	var params map[string]interface{}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &params); err != nil {
			writeError(w, err)
			return
		}
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	actionPath := name
	if pkg != "" {
		actionPath = pkg + "/" + name
	}

	result, err := h.Orchestrator.InvokeAction(r.Context(), orchestrator.InvokeActionRequest{
		Namespace:  ns,
		ActionPath: actionPath,
		Params:     params,
		Blocking:   true,
		ResultOnly: true,
		Subject:    "web",
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeWebResponse(w, ext, result.Activation)
}

func splitExtension(nameext string) (name, ext string, err error) {
	idx := strings.LastIndex(nameext, ".")
	if idx < 0 {
		return "", "", werr.Validationf("web action path must end with an extension (.json/.html/.text/.svg/.http)")
	}
	name, ext = nameext[:idx], nameext[idx+1:]
	if _, ok := webExtensions[ext]; !ok {
		return "", "", werr.Validationf("unsupported web action extension %q", ext)
	}
	return name, ext, nil
}

func writeWebResponse(w http.ResponseWriter, ext string, act *domain.Activation) {
	status := statusForActivation(act)
	result := map[string]interface{}{}
	if act != nil {
		result = act.Response.Result
	}

	switch ext {
	case "json":
		writeJSON(w, status, result)
	case "html", "text", "svg":
		body, _ := result["body"].(string)
		w.Header().Set("Content-Type", webExtensions[ext]+"; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	case "http":
		writeHTTPShapedResponse(w, status, result)
	}
}

// writeHTTPShapedResponse honors a web action's {statusCode, headers, body}
// result shape, letting the action fully control the HTTP response.
func writeHTTPShapedResponse(w http.ResponseWriter, defaultStatus int, result map[string]interface{}) {
	status := defaultStatus
	if sc, ok := result["statusCode"].(float64); ok {
		status = int(sc)
	}
	if headers, ok := result["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				w.Header().Set(k, s)
			}
		}
	}

	body := result["body"]
	switch b := body.(type) {
	case string:
		w.WriteHeader(status)
		fmt.Fprint(w, b)
	case nil:
		w.WriteHeader(status)
	default:
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(b)
	}
}
