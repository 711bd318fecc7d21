package param

import (
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
)

var params *Params
var awsSession *session.Session

var paramLookup = map[string]string{
	"ANTHROPIC_API_KEY":          "/stagehand/anthropic_api_key",
	"GROQ_API_KEY":               "/stagehand/groq_api_key",
	"OPENROUTER_API_KEY":         "/stagehand/openrouter_api_key",
	"OLLAMA_ADDRESS":             "/stagehand/ollama_address",
	"STAGEHAND_PG_URI":           "/stagehand/pg_uri",
	"STAGEHAND_DATA_DIR":         "/stagehand/data_dir",
	"STAGEHAND_WORKSPACE_DIR":    "/stagehand/workspace_dir",
	"STAGEHAND_SLACK_TOKEN":      "/stagehand/slack_token",
	"STAGEHAND_SLACK_CHANNEL":    "/stagehand/slack_channel",
	"STAGEHAND_DEFAULT_MODEL":    "/stagehand/default_model",
	"STAGEHAND_DEFAULT_PROVIDER": "/stagehand/default_provider",
}

type Params struct {
	AnthropicAPIKey  string
	GroqAPIKey       string
	OpenRouterAPIKey string
	OllamaAddress    string
	PGURI            string
	DataDir          string
	WorkspaceDir     string
	SlackToken       string
	SlackChannel     string
	DefaultModel     string
	DefaultProvider  string
}

func Get() Params {
	if params == nil {
		panic("params not initialized")
	}
	return *params
}

// Set replaces the loaded params. Tests use this to avoid env/SSM lookups.
func Set(p Params) {
	params = &p
}

func Init(sess *session.Session) error {
	awsSession = sess

	var paramsMap map[string]string
	if os.Getenv("USE_EC2_PARAMETERS") == "true" {
		p, err := GetParamsFromSSM(paramLookup)
		if err != nil {
			return fmt.Errorf("get from ssm: %w", err)
		}
		paramsMap = p
	} else {
		paramsMap = GetParamsFromEnv(paramLookup)
	}

	params = &Params{
		AnthropicAPIKey:  paramsMap["ANTHROPIC_API_KEY"],
		GroqAPIKey:       paramsMap["GROQ_API_KEY"],
		OpenRouterAPIKey: paramsMap["OPENROUTER_API_KEY"],
		OllamaAddress:    paramsMap["OLLAMA_ADDRESS"],
		PGURI:            paramsMap["STAGEHAND_PG_URI"],
		DataDir:          paramsMap["STAGEHAND_DATA_DIR"],
		WorkspaceDir:     paramsMap["STAGEHAND_WORKSPACE_DIR"],
		SlackToken:       paramsMap["STAGEHAND_SLACK_TOKEN"],
		SlackChannel:     paramsMap["STAGEHAND_SLACK_CHANNEL"],
		DefaultModel:     paramsMap["STAGEHAND_DEFAULT_MODEL"],
		DefaultProvider:  paramsMap["STAGEHAND_DEFAULT_PROVIDER"],
	}

	return nil
}

func GetParamsFromSSM(paramLookup map[string]string) (map[string]string, error) {
	svc := ssm.New(awsSession)

	params := map[string]string{}
	reverseLookup := map[string][]string{}

	lookup := []*string{}
	for envName, ssmName := range paramLookup {
		if ssmName == "" {
			params[envName] = os.Getenv(envName)
			continue
		}

		lookup = append(lookup, aws.String(ssmName))
		reverseLookup[ssmName] = append(reverseLookup[ssmName], envName)
	}
	batch := chunkSlice(lookup, 10)

	for _, names := range batch {
		input := &ssm.GetParametersInput{
			Names:          names,
			WithDecryption: aws.Bool(true),
		}
		output, err := svc.GetParameters(input)
		if err != nil {
			return params, fmt.Errorf("call get parameters: %w", err)
		}

		for _, p := range output.InvalidParameters {
			log.Printf("Ssm param %s invalid", *p)
		}

		for _, p := range output.Parameters {
			for _, envName := range reverseLookup[*p.Name] {
				params[envName] = *p.Value
			}
		}
	}

	return params, nil
}

func GetParamsFromEnv(paramLookup map[string]string) map[string]string {
	params := map[string]string{}
	for envName := range paramLookup {
		params[envName] = os.Getenv(envName)
	}
	return params
}

func chunkSlice(s []*string, n int) [][]*string {
	var chunked [][]*string
	for i := 0; i < len(s); i += n {
		end := i + n
		if end > len(s) {
			end = len(s)
		}
		chunked = append(chunked, s[i:end])
	}
	return chunked
}
