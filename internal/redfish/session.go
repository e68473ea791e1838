// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package redfish

import (
	"context"
	"fmt"
	"net/http"
)

// FirmwareInventoryItem is one entry of /redfish/v1/UpdateService/FirmwareInventory.
type FirmwareInventoryItem struct {
	Name    string `json:"Name"`
	Version string `json:"Version"`
	Updateable bool `json:"Updateable"`
}

// GetFirmwareInventory fetches and decodes the UpdateService firmware
// inventory collection's member summaries.
func (c *Client) GetFirmwareInventory(ctx context.Context) ([]FirmwareInventoryItem, error) {
	resp, err := c.Get(ctx, "/redfish/v1/UpdateService/FirmwareInventory")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s", ExtractErrorMessage(resp.StatusCode, resp.Body))
	}

	var collection struct {
		Members []struct {
			FirmwareInventoryItem
		} `json:"Members"`
	}
	if err := resp.JSON(&collection); err != nil {
		return nil, fmt.Errorf("decoding firmware inventory: %w", err)
	}

	items := make([]FirmwareInventoryItem, len(collection.Members))
	for i, m := range collection.Members {
		items[i] = m.FirmwareInventoryItem
	}
	return items, nil
}

// StageFirmware pushes a PLDM package via the UpdateService's
// MultipartHTTPPushUpdate action and returns the task monitor URI from the
// response's Location header equivalent (the "@odata.id" of the created task).
func (c *Client) StageFirmware(ctx context.Context, targetURIs []string, image []byte) (taskURI string, err error) {
	params := map[string]any{"Targets": targetURIs}
	resp, err := c.PostMultipart(ctx, "/redfish/v1/UpdateService/update-multipart", params, "UpdateFile", "firmware.pldm", image)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s", ExtractErrorMessage(resp.StatusCode, resp.Body))
	}

	var task struct {
		OID string `json:"@odata.id"`
	}
	if err := resp.JSON(&task); err != nil || task.OID == "" {
		// Some BMCs return an empty 202 body and communicate the task via a
		// Location header instead; that is handled by the caller polling
		// the well-known TaskService collection. Treat as success with no
		// URI rather than failing the stage step.
		return "", nil
	}
	return task.OID, nil
}

// TaskState mirrors the Redfish Task resource's TaskState enum values this
// client cares about.
type TaskState string

const (
	TaskStateRunning   TaskState = "Running"
	TaskStateCompleted TaskState = "Completed"
	TaskStateException TaskState = "Exception"
	TaskStateCancelled TaskState = "Cancelled"
)

// PollUpdateTask fetches the current state of a firmware update task.
func (c *Client) PollUpdateTask(ctx context.Context, taskURI string) (TaskState, error) {
	resp, err := c.Get(ctx, taskURI)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s", ExtractErrorMessage(resp.StatusCode, resp.Body))
	}

	var task struct {
		TaskState TaskState `json:"TaskState"`
	}
	if err := resp.JSON(&task); err != nil {
		return "", fmt.Errorf("decoding task state: %w", err)
	}
	return task.TaskState, nil
}

// Activate triggers the configured ApplyTime action (reset/reboot) for a
// staged firmware update, per the UpdateService's ApplyTime semantics.
func (c *Client) Activate(ctx context.Context, resetType string) error {
	resp, err := c.Post(ctx, "/redfish/v1/Systems/System.Embedded.1/Actions/ComputerSystem.Reset", map[string]string{"ResetType": resetType})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%s", ExtractErrorMessage(resp.StatusCode, resp.Body))
	}
	return nil
}
