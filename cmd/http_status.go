// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Thermoquad/mdplink/pkg/indicator"
	"github.com/Thermoquad/mdplink/pkg/link"
	"github.com/Thermoquad/mdplink/pkg/session"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// statusSource is everything the status endpoints report on.
type statusSource struct {
	connInfo   string
	controller *session.Controller
	lights     *indicator.Log
	driver     *link.BridgeDriver
	events     *link.Events
}

type bridgeStatus struct {
	Connection   string `json:"connection"`
	CRCErrors    uint64 `json:"crc_errors"`
	DecodeErrors uint64 `json:"decode_errors"`
	LostFrames   uint64 `json:"lost_frames"`
	TxFailures   uint64 `json:"tx_failures"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	e := json.NewEncoder(w)
	e.SetIndent("", "    ")
	e.Encode(v)
}

func versionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		Version string `json:"version"`
	}{Version: rootCmd.Version})
}

func (s *statusSource) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.controller.Snapshot())
}

func (s *statusSource) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.controller.Snapshot().Statistics)
}

func (s *statusSource) resetStats(w http.ResponseWriter, r *http.Request) {
	s.controller.ResetStatistics()
	w.WriteHeader(http.StatusNoContent)
}

func (s *statusSource) getLights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.lights.States())
}

func (s *statusSource) getLight(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, l := range indicator.Lights {
		if l.String() == name {
			writeJSON(w, map[string]bool{name: s.lights.State(l)})
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(fmt.Sprintf("No such light %v", name)))
}

func (s *statusSource) getBridge(w http.ResponseWriter, r *http.Request) {
	status := bridgeStatus{Connection: s.connInfo}
	if s.driver != nil {
		status.CRCErrors, status.DecodeErrors = s.driver.DecodeErrors()
	}
	if s.events != nil {
		status.LostFrames = s.events.Lost()
		status.TxFailures = s.events.TxFailed()
	}
	writeJSON(w, status)
}

// newStatusRouter builds the HTTP routes for a running session.
func newStatusRouter(s *statusSource) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/version", versionInfo).Methods("GET")
	router.HandleFunc("/state", s.getState).Methods("GET")
	router.HandleFunc("/stats", s.getStats).Methods("GET")
	router.HandleFunc("/stats/reset", s.resetStats).Methods("POST")
	router.HandleFunc("/lights", s.getLights).Methods("GET")
	router.HandleFunc("/lights/{name}", s.getLight).Methods("GET")
	router.HandleFunc("/bridge", s.getBridge).Methods("GET")
	return router
}

// startStatusServer serves the status routes in the background.
func startStatusServer(addr string, s *statusSource, logger *log.Entry) *http.Server {
	h := &http.Server{Addr: addr, Handler: newStatusRouter(s)}
	go func() {
		if err := h.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Status server stopped")
		}
	}()
	logger.WithField("addr", addr).Info("Serving session status")
	return h
}
