package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// PrintRoutes writes every route registered in the router to w
func PrintRoutes(w io.Writer, r *mux.Router) {
	fmt.Fprintln(w, "=== Registered Routes ===")
	fmt.Fprintln(w, "METHOD\tPATH")
	fmt.Fprintln(w, "-------------------------------")

	_ = r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			pathTemplate = "<unknown>"
		}
		// prefix-only subrouters carry no handler
		if route.GetHandler() == nil {
			return nil
		}

		methods, err := route.GetMethods()
		methodStr := "ANY"
		if err == nil && len(methods) > 0 {
			methodStr = strings.Join(methods, ",")
		}

		fmt.Fprintf(w, "%s\t%s\n", methodStr, pathTemplate)
		return nil
	})
	fmt.Fprintln(w, "==============================")
}

// PrintRoutesHandler returns a handler function to print all routes
func PrintRoutesHandler(router *mux.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		PrintRoutes(w, router)
	}
}
