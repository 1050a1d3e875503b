package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSMClient struct {
	values  map[string]string
	err     error
	batches [][]string
}

func (f *fakeSSMClient) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batches = append(f.batches, in.Names)
	if f.err != nil {
		return nil, f.err
	}
	out := &ssm.GetParametersOutput{}
	for _, name := range in.Names {
		if v, ok := f.values[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(v)})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, name)
		}
	}
	return out, nil
}

var _ SecretProvider = (*SSMProvider)(nil)

func TestSSMProvider_EmptyKeys(t *testing.T) {
	p := newSSMProviderWithClient("ap-northeast-1", &fakeSSMClient{})

	got, err := p.GetParametersBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSSMProvider_BatchesByTen(t *testing.T) {
	values := make(map[string]string)
	keys := make([]string, 0, 23)
	for i := 0; i < 23; i++ {
		k := fmt.Sprintf("/prod/relay/param%d", i)
		keys = append(keys, k)
		values[k] = fmt.Sprintf("v%d", i)
	}
	fake := &fakeSSMClient{values: values}
	p := newSSMProviderWithClient("ap-northeast-1", fake)

	got, err := p.GetParametersBatch(context.Background(), keys)
	require.NoError(t, err)
	assert.Len(t, got, 23)
	assert.Equal(t, "v22", got["/prod/relay/param22"])

	require.Len(t, fake.batches, 3)
	assert.Len(t, fake.batches[0], 10)
	assert.Len(t, fake.batches[2], 3)
}

func TestSSMProvider_InvalidParameter(t *testing.T) {
	fake := &fakeSSMClient{values: map[string]string{"/a": "1"}}
	p := newSSMProviderWithClient("ap-northeast-1", fake)

	_, err := p.GetParametersBatch(context.Background(), []string{"/a", "/missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/missing")
}

func TestSSMProvider_ClientError(t *testing.T) {
	fake := &fakeSSMClient{err: errors.New("throttled")}
	p := newSSMProviderWithClient("ap-northeast-1", fake)

	_, err := p.GetParametersBatch(context.Background(), []string{"/a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSSMProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeSSMClient{values: map[string]string{"/a": "1"}}
	p := newSSMProviderWithClient("ap-northeast-1", fake)

	_, err := p.GetParametersBatch(ctx, []string{"/a"})
	require.Error(t, err)
	assert.Empty(t, fake.batches)
}
