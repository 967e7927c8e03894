package storage_provider

import (
	"encoding/json"
	"fmt"
)

func publicReadPolicy(bucketName string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucketName)
}

type bucketPolicy struct {
	Statement []struct {
		Effect    string          `json:"Effect"`
		Principal json.RawMessage `json:"Principal"`
		Action    json.RawMessage `json:"Action"`
	} `json:"Statement"`
}

// policyVisibility reports public when the policy lets anyone read objects.
func policyVisibility(policy string) string {
	var p bucketPolicy
	if err := json.Unmarshal([]byte(policy), &p); err != nil {
		return VisibilityPrivate
	}
	for _, st := range p.Statement {
		if st.Effect != "Allow" {
			continue
		}
		if containsString(st.Action, "s3:GetObject") && isAnyone(st.Principal) {
			return VisibilityPublic
		}
	}
	return VisibilityPrivate
}

func containsString(raw json.RawMessage, want string) bool {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one == want || one == "s3:*"
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, s := range many {
			if s == want || s == "s3:*" {
				return true
			}
		}
	}
	return false
}

func isAnyone(raw json.RawMessage) bool {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one == "*"
	}
	var obj struct {
		AWS json.RawMessage `json:"AWS"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj.AWS) > 0 {
		return containsString(obj.AWS, "*")
	}
	return false
}
