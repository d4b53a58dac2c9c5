// Copyright 2026 Weft Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateArgs checks LLM-supplied arguments against the tool's declared
// schema. A nil schema accepts anything: external servers may omit schemas
// and skills take free-form arguments.
func ValidateArgs(def *Definition, args map[string]interface{}) error {
	if def.Parameters == nil {
		return nil
	}

	schemaJSON, err := def.Parameters.ToJSON()
	if err != nil {
		return fmt.Errorf("invalid schema for tool %s: %w", def.Name, err)
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("unserializable arguments for tool %s: %w", def.Name, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(argsJSON),
	)
	if err != nil {
		// Schema engine failure is advisory; let the tool surface its own error.
		return nil
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("invalid arguments for %s: %s", def.Name, strings.Join(problems, "; "))
	}
	return nil
}
