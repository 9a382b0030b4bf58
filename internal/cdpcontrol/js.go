package cdpcontrol

import "encoding/json"

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// wrapJSEval runs body in an IIFE that reports thrown errors through the
// eval envelope.
func wrapJSEval(body string) string {
	return `(function(){
try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

// styleInserter is the page-side body shared by the immediate and the
// new-document variants. It defines add(), which appends one <style>.
func styleInserter(inj styleInjection) string {
	return `var css = ` + jsString(inj.CSS) + `;
var origin = ` + jsString(inj.Origin) + `;
var add = function() {
  var el = document.createElement('style');
  el.setAttribute('data-tipshield-origin', origin);
  el.textContent = css;
  (document.head || document.documentElement).appendChild(el);
};`
}

// runAtGate wraps add() so it fires at the requested point of the document
// lifecycle.
func runAtGate(runAt string) string {
	switch runAt {
	case RunAtDocumentEnd:
		return `if (document.readyState === 'loading') {
  document.addEventListener('DOMContentLoaded', add, {once: true});
} else { add(); }`
	case RunAtDocumentIdle:
		return `if (document.readyState !== 'complete') {
  window.addEventListener('load', add, {once: true});
} else { add(); }`
	default:
		return `if (document.documentElement) { add(); }
else { document.addEventListener('readystatechange', add, {once: true}); }`
	}
}

// jsInsertStyle applies the injection to the current document and reports
// through the eval envelope.
func jsInsertStyle(inj styleInjection) string {
	return wrapJSEval(styleInserter(inj) + "\n" + runAtGate(inj.RunAt) + `
return JSON.stringify({ok:true});`)
}

// jsStyleOnNewDocument is registered with Page.addScriptToEvaluateOnNewDocument.
func jsStyleOnNewDocument(inj styleInjection) string {
	return "(function(){\n" + styleInserter(inj) + "\n" + runAtGate(inj.RunAt) + "\n})();"
}
