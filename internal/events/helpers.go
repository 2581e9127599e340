package events

import (
	"encoding/json"
	"fmt"
)

// SetHealingStartedData sets the Data field with HealingStartedData in a type-safe way.
func (e *HealingEvent) SetHealingStartedData(data HealingStartedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert HealingStartedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetHealingStartedData retrieves HealingStartedData from the Data field.
func (e *HealingEvent) GetHealingStartedData() (*HealingStartedData, error) {
	var data HealingStartedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse HealingStartedData: %w", err)
	}
	return &data, nil
}

// SetHealingCompleteData sets the Data field with HealingCompleteData in a type-safe way.
func (e *HealingEvent) SetHealingCompleteData(data HealingCompleteData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert HealingCompleteData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetHealingCompleteData retrieves HealingCompleteData from the Data field.
func (e *HealingEvent) GetHealingCompleteData() (*HealingCompleteData, error) {
	var data HealingCompleteData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse HealingCompleteData: %w", err)
	}
	return &data, nil
}

// SetDeploymentStatusData sets the Data field with DeploymentStatusData in a type-safe way.
func (e *HealingEvent) SetDeploymentStatusData(data DeploymentStatusData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert DeploymentStatusData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetDeploymentStatusData retrieves DeploymentStatusData from the Data field.
func (e *HealingEvent) GetDeploymentStatusData() (*DeploymentStatusData, error) {
	var data DeploymentStatusData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse DeploymentStatusData: %w", err)
	}
	return &data, nil
}

// SetKillSwitchActivatedData sets the Data field with KillSwitchActivatedData in a type-safe way.
func (e *HealingEvent) SetKillSwitchActivatedData(data KillSwitchActivatedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert KillSwitchActivatedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetKillSwitchActivatedData retrieves KillSwitchActivatedData from the Data field.
func (e *HealingEvent) GetKillSwitchActivatedData() (*KillSwitchActivatedData, error) {
	var data KillSwitchActivatedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse KillSwitchActivatedData: %w", err)
	}
	return &data, nil
}

// SetIncidentReportedData sets the Data field with IncidentReportedData in a type-safe way.
func (e *HealingEvent) SetIncidentReportedData(data IncidentReportedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert IncidentReportedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetIncidentReportedData retrieves IncidentReportedData from the Data field.
func (e *HealingEvent) GetIncidentReportedData() (*IncidentReportedData, error) {
	var data IncidentReportedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse IncidentReportedData: %w", err)
	}
	return &data, nil
}

// SetEventCleanupCompletedData sets the Data field with EventCleanupCompletedData in a type-safe way.
func (e *HealingEvent) SetEventCleanupCompletedData(data EventCleanupCompletedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert EventCleanupCompletedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetEventCleanupCompletedData retrieves EventCleanupCompletedData from the Data field.
func (e *HealingEvent) GetEventCleanupCompletedData() (*EventCleanupCompletedData, error) {
	var data EventCleanupCompletedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse EventCleanupCompletedData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
