// Copyright (C) 2025 SIWA Project
//
// This file is part of siwa-go.
//
// siwa-go is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// siwa-go is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with siwa-go.  If not, see <https://www.gnu.org/licenses/>.

package siwa

// ResponseStatus is the top-level outcome a platform reports to an agent.
type ResponseStatus string

const (
	StatusAuthenticated ResponseStatus = "authenticated"
	StatusNotRegistered ResponseStatus = "not_registered"
	StatusRejected      ResponseStatus = "rejected"
)

// SkillRef points an agent at the SIWA SDK so it can self-remediate.
type SkillRef struct {
	Name    string `json:"name"`
	Install string `json:"install"`
	URL     string `json:"url"`
}

// Action tells an unregistered agent what to do before retrying.
type Action struct {
	Type            string   `json:"type"`
	Message         string   `json:"message"`
	Skill           SkillRef `json:"skill"`
	Steps           []string `json:"steps"`
	RegistryAddress string   `json:"registry_address,omitempty"`
	ChainID         uint64   `json:"chain_id,omitempty"`
}

// Response is the standard SIWA response platforms forward directly to
// agents. It distinguishes "not registered" (with remediation steps)
// from "rejected" (with a code) from "authenticated".
type Response struct {
	Status        ResponseStatus `json:"status"`
	Address       string         `json:"address,omitempty"`
	AgentID       uint64         `json:"agent_id,omitempty"`
	AgentRegistry string         `json:"agent_registry,omitempty"`
	ChainID       uint64         `json:"chain_id,omitempty"`
	Verified      VerifiedMode   `json:"verified,omitempty"`
	SignerType    SignerType     `json:"signer_type,omitempty"`
	Code          ErrorCode      `json:"code,omitempty"`
	Error         string         `json:"error,omitempty"`
	Action        *Action        `json:"action,omitempty"`
	Skill         *SkillRef      `json:"skill,omitempty"`
}

func defaultSkillRef() SkillRef {
	return SkillRef{
		Name:    "siwa",
		Install: "go get github.com/siwa-id/siwa-go",
		URL:     "https://siwa.id/skill.md",
	}
}

// BuildResponse converts a VerificationResult into the standard Response
// format. For NOT_REGISTERED results the response carries concrete
// registration steps so an agent can remediate without a round-trip to
// documentation.
func BuildResponse(result VerificationResult) Response {
	skill := defaultSkillRef()

	resp := Response{
		Address:       result.Address,
		AgentID:       result.AgentID,
		AgentRegistry: result.AgentRegistry,
		ChainID:       result.ChainID,
		Verified:      result.Verified,
		SignerType:    result.SignerType,
	}

	if result.Valid {
		resp.Status = StatusAuthenticated
		return resp
	}

	if result.Code == CodeNotRegistered {
		registryAddress := ""
		chainID := result.ChainID
		if ref, err := ParseRegistryRef(result.AgentRegistry); err == nil {
			registryAddress = ref.Address
			if chainID == 0 {
				chainID = ref.ChainID
			}
		}

		resp.Status = StatusNotRegistered
		resp.Code = result.Code
		resp.Error = "Agent is not registered on the ERC-8004 Identity Registry."
		resp.Skill = &skill
		resp.Action = &Action{
			Type:    "register",
			Message: "This address is not registered as an ERC-8004 agent. Install the SIWA SDK and register before signing in.",
			Skill:   skill,
			Steps: []string{
				"Install the SDK: go get github.com/siwa-id/siwa-go",
				"Create a wallet with wallet.NewLocalSigner or a keyring proxy",
				"Fund the wallet with ETH on the target chain for gas fees",
				"Build ERC-8004 registration metadata (JSON with name, description, services, active: true)",
				"Register onchain: call register(agent_uri) on the Identity Registry contract " + registryAddress,
				"Retry SIWA sign-in",
			},
			RegistryAddress: registryAddress,
			ChainID:         chainID,
		}
		return resp
	}

	resp.Status = StatusRejected
	resp.Code = result.Code
	resp.Error = result.Error
	resp.Skill = &skill
	return resp
}
