// Package httpx is the injected network client used by every stage of
// the pipeline.
//
// Requests belong to one of three traffic classes (manifest, key or
// segment) and each class carries an ordered list of request and
// response hooks, invoked synchronously around the request. Hooks form
// the extension point for callers that need to sign requests or unwrap
// origin-specific payloads; they never alter control flow.
//
//	client := httpx.NewClient(map[string]string{"Referer": "https://example.com/"})
//	client.OnRequest(httpx.TrafficSegment, func(r *http.Request) {
//	    r.Header.Set("X-Token", token)
//	})
//	resp, err := client.Get(ctx, httpx.TrafficManifest, manifestURL, nil)
//	defer client.Close()
package httpx
