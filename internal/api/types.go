package api

type LoadRequest struct {
	Path     string `json:"path"`
	Prefab   bool   `json:"prefab,omitempty"`
	Int8     int    `json:"quant_int8,omitempty"`
	NF4      int    `json:"quant_nf4,omitempty"`
	SF4      int    `json:"quant_sf4,omitempty"`
	Rescale  int    `json:"rescale,omitempty"`
	Extended bool   `json:"extended,omitempty"`
}

type InferRequest struct {
	Tokens      []uint32 `json:"tokens"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
}

type InferResponse struct {
	Token   int    `json:"token"`
	Session string `json:"session"`
}

type RawInferRequest struct {
	Tokens []uint32 `json:"tokens"`
	// Mode is "last" (default) or "full".
	Mode string `json:"mode,omitempty"`
}

type RawInferResponse struct {
	Logits  []float32 `json:"logits"`
	Rows    int       `json:"rows"`
	Vocab   int       `json:"vocab"`
	Session string    `json:"session"`
}

type StateBody struct {
	State []float32 `json:"state"`
}

type InfoResponse struct {
	Version    int    `json:"version"`
	NumLayer   int    `json:"num_layer"`
	NumHidden  int    `json:"num_hidden"`
	NumEmb     int    `json:"num_emb"`
	NumVocab   int    `json:"num_vocab"`
	NumHead    int    `json:"num_head"`
	StateLen   int    `json:"state_len"`
	Session    string `json:"session"`
	Generation uint64 `json:"generation"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
