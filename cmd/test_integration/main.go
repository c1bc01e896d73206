package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var baseURL = "http://localhost:8080"

func main() {
	if v := os.Getenv("CBNING_URL"); v != "" {
		baseURL = v
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Integration Test...")

	fmt.Println("1. Creating session...")
	var created struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if !sendRequest("POST", "/sessions", nil, http.StatusCreated, &created) || created.Session.ID == "" {
		fail("Create session")
	}
	id := created.Session.ID
	fmt.Printf("PASSED: Create session (%s)\n", id)

	fmt.Println("2. Submitting turn...")
	var turn struct {
		Turn struct {
			Status string `json:"status"`
			Reply  string `json:"reply"`
		} `json:"turn"`
	}
	if !sendRequest("POST", "/sessions/"+id+"/turns", map[string]string{
		"text": "Education programs also improve community health.",
	}, http.StatusOK, &turn) {
		fail("Submit turn")
	}
	fmt.Printf("PASSED: Submit turn (status %s)\n", turn.Turn.Status)

	fmt.Println("3. Rendering graph...")
	if !sendRequest("GET", "/sessions/"+id+"/graph.dot", nil, http.StatusOK, nil) {
		fail("Render graph")
	}
	fmt.Println("PASSED: Render graph")

	fmt.Println("4. Deleting session...")
	if !sendRequest("DELETE", "/sessions/"+id, nil, http.StatusNoContent, nil) {
		fail("Delete session")
	}
	fmt.Println("PASSED: Delete session")
}

func fail(step string) {
	fmt.Printf("FAILED: %s\n", step)
	os.Exit(1)
}

func sendRequest(method, endpoint string, payload interface{}, want int, out interface{}) bool {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	fmt.Printf("Response: %s\n", string(respBody))

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			fmt.Printf("Error decoding response: %v\n", err)
			return false
		}
	}
	return true
}
